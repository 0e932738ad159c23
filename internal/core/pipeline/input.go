package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"recipe-ingest/internal/core/validation"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"
)

// Metadata 輸入文件的批次資訊
type Metadata struct {
	BatchName   string `json:"batch_name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Input 輸入文件
type Input struct {
	Metadata Metadata                   `json:"metadata"`
	Recettes []common.GenerationRequest `json:"recettes"`
}

// LoadInputFile 讀取並驗證輸入文件
func LoadInputFile(path string, maxBatchSize int) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewValidationError(fmt.Sprintf("impossible de lire %s", path), err.Error())
	}
	return ParseInput(data, maxBatchSize)
}

// ParseInput 解析輸入文件；JSON 錯誤、缺少或空的 recettes、超過批次上限都整批拒絕
func ParseInput(data []byte, maxBatchSize int) (*Input, error) {
	var raw struct {
		Metadata Metadata                    `json:"metadata"`
		Recettes *[]common.GenerationRequest `json:"recettes"`
	}
	if err := common.ParseJSONBytes(data, &raw); err != nil {
		return nil, common.NewValidationError("document JSON invalide", err.Error())
	}
	if raw.Recettes == nil {
		return nil, common.NewValidationError("document invalide", "le champ recettes est requis")
	}

	in := &Input{Metadata: raw.Metadata, Recettes: *raw.Recettes}
	v := validation.New(config.PipelineConfig{MaxBatchSize: maxBatchSize})
	if err := v.ValidateInputBatch(in.Recettes).Err("lot invalide"); err != nil {
		return nil, err
	}

	in.Metadata.BatchName = strings.TrimSpace(in.Metadata.BatchName)
	if in.Metadata.BatchName == "" {
		in.Metadata.BatchName = "batch-" + time.Now().UTC().Format("20060102-150405")
	}
	return in, nil
}

package domain

import "context"

// PositionRepository читает текущие позиции (только чтение)
type PositionRepository interface {
	GetPositionQty(ctx context.Context, symbol string) (float64, error)
}

// AdmissionRepository сохраняет аудит решений о допуске
type AdmissionRepository interface {
	SaveAdmission(ctx context.Context, record *AdmissionRecord) error
}

// AnchorRepository сохраняет результаты анкоринга
type AnchorRepository interface {
	SaveAnchorReceipt(ctx context.Context, record *AnchorRecord) error
}

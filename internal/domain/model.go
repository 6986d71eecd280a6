package domain

import (
	"fmt"
	"time"
)

// ModelType represents the capability class of a registered model
type ModelType string

const (
	ModelTypeLanguage  ModelType = "language"
	ModelTypeEmbedding ModelType = "embedding"
)

// Model represents a registered generation or embedding model
type Model struct {
	ID        string
	Name      string
	Provider  string
	Type      ModelType
	CreatedAt time.Time
}

// NewModel creates a new Model instance
func NewModel(id, name, provider string, modelType ModelType, createdAt time.Time) *Model {
	return &Model{
		ID:        id,
		Name:      name,
		Provider:  provider,
		Type:      modelType,
		CreatedAt: createdAt,
	}
}

// ValidateModel validates a Model instance
func ValidateModel(m *Model) error {
	if m == nil {
		return fmt.Errorf("model cannot be nil")
	}
	if m.Name == "" {
		return NewDomainError(ErrCodeValidation, "model name is required")
	}
	if m.Provider == "" {
		return NewDomainError(ErrCodeValidation, "model provider is required")
	}
	switch m.Type {
	case ModelTypeLanguage, ModelTypeEmbedding:
		return nil
	default:
		return ErrInvalidModelType
	}
}

package dto

type CreateTemplateDTO struct {
	Title       string `json:"title" validate:"required,min_runes=3,max=100"`
	Description string `json:"description" validate:"required,min_runes=10,max=1000"`
}

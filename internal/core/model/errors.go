package model

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductIneligible = errors.New("product is not eligible for mapping")
	ErrSameProduct       = errors.New("source and target product are the same")
	ErrMalformedPayload  = errors.New("malformed questionnaire payload")
)

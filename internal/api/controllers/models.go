package controllers

import "github.com/datallboy/rangefetch/internal/domain"

type SubmitRequest struct {
	Endpoint string `json:"endpoint"`
}

type RunListResponse struct {
	Active  *domain.Run   `json:"active,omitempty"`
	Pending []*domain.Run `json:"pending"`
	History []*domain.Run `json:"history"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

//go:build gocv

package main

import (
	"context"

	"github.com/patient-idv/internal/application/identity"
	"github.com/patient-idv/internal/config"
	"github.com/patient-idv/internal/infrastructure/opencv"
)

func documentExtractor(ctx context.Context, cfg config.FaceConfig) (identity.DocumentFaceExtractor, func(), error) {
	p := opencv.New(cfg)
	if err := p.Load(ctx); err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

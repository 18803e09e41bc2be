//go:build !gocv

package main

import (
	"context"
	"errors"

	"github.com/patient-idv/internal/application/identity"
	"github.com/patient-idv/internal/config"
)

var errNoFaceModels = errors.New("FACE_DOCUMENT_BINDING requires a build with -tags gocv")

func documentExtractor(context.Context, config.FaceConfig) (identity.DocumentFaceExtractor, func(), error) {
	return nil, nil, errNoFaceModels
}

package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrTagUpstream marks failures of embedding, model or vector store calls
	ErrTagUpstream = goerr.NewTag("upstream")
	// ErrTagParse marks a model reply that could not be interpreted
	ErrTagParse = goerr.NewTag("parse")
	// ErrTagValidation marks malformed input rejected before the core
	ErrTagValidation = goerr.NewTag("validation")
)

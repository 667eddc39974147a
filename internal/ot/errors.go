package ot

import "errors"

var (
	errEmptyInsertText         = errors.New("ot: insert operation must carry non-empty text")
	errNonPositiveDeleteLength = errors.New("ot: delete operation must have length >= 1")
	errUnknownOperationKind    = errors.New("ot: unknown operation kind")
)

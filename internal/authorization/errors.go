package authorization

import "errors"

var (
	ErrInvalidSubject = errors.New("invalid_tenant_subject")
	ErrInvalidObject  = errors.New("invalid_document_type_object")
	ErrNotAuthorized  = errors.New("tenant_not_authorized_for_document_type")
)

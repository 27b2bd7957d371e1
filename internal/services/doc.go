// Package services holds the shared error taxonomy and request context
// helpers used by the external collaborator clients under services/ and by
// the pipeline that invokes them.
package services

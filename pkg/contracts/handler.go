package contracts

import "github.com/julienschmidt/httprouter"

// Handler is what the application mounts on its router. The operator console
// is the only implementation; the indirection keeps pkg/app free of internal
// imports.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

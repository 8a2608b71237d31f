package rpc

// Scope is the wire form of a blob namespace.
type Scope struct {
	Usecase string `json:"usecase"`
	Scope   string `json:"scope"`
}

// PutBlobRequest stores Contents under Scope. Key is optional; when it is
// nil or empty the server generates one.
type PutBlobRequest struct {
	Scope    *Scope  `json:"scope,omitempty"`
	Key      *string `json:"key,omitempty"`
	Contents []byte  `json:"contents"`
}

// PutBlobResponse carries the storage key to use for later reads.
type PutBlobResponse struct {
	Key string `json:"key"`
}

type GetBlobRequest struct {
	Scope *Scope `json:"scope,omitempty"`
	Key   string `json:"key"`
}

type GetBlobResponse struct {
	Contents []byte `json:"contents"`
}

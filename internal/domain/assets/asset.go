package assets

import "fmt"

// ID is the (customer, space, asset) triple that keys every orchestration
// and authorization lookup.
type ID struct {
	Customer int
	Space    int
	Asset    string
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%s", id.Customer, id.Space, id.Asset)
}

type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusOrchestrating Status = "orchestrating"
	StatusOrchestrated  Status = "orchestrated"
	StatusError         Status = "error"
)

type Kind string

const (
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// StagedAsset is the in-process representation of an asset whose metadata
// has been staged for serving. Variant payloads hang off the Kind tag;
// exactly one of Image/File is set.
type StagedAsset struct {
	ID      ID
	Roles   []string
	Version int64
	Kind    Kind
	Status  Status

	Image *ImageDetails
	File  *FileDetails
}

type ImageDetails struct {
	Width          int
	Height         int
	ThumbnailSizes []int
	StorageKey     string
}

type FileDetails struct {
	MediaType string
	Origin    string
}

// RequiresAuth holds iff the asset carries at least one required role.
func (a *StagedAsset) RequiresAuth() bool {
	return len(a.Roles) > 0
}

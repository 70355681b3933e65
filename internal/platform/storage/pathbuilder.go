package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposeDraftPhoto   AssetPurpose = "draft-photo"
	PurposeDraftMusic   AssetPurpose = "draft-music"
	PurposeGalleryPhoto AssetPurpose = "gallery-photo"
	PurposeGalleryMusic AssetPurpose = "gallery-music"
)

const maxFileNameLength = 96

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	DraftID  string
	UploadID string
	At       time.Time
	FileName string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[AssetPurpose]PathBuilder{
		PurposeDraftPhoto:   draftPathBuilder("photos"),
		PurposeDraftMusic:   draftPathBuilder("music"),
		PurposeGalleryPhoto: publishedPathBuilder("photos"),
		PurposeGalleryMusic: publishedPathBuilder("music"),
	}
	pathBuildersMu sync.RWMutex

	unsafeFileChars = regexp.MustCompile(`[^a-z0-9._-]+`)
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

// SanitizeFileName lowercases name and replaces anything outside [a-z0-9._-].
func SanitizeFileName(name string) string {
	name = strings.ToLower(strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	name = unsafeFileChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	if len(name) > maxFileNameLength {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.TrimRight(name[:maxFileNameLength-len(ext)], "-.") + ext
	}
	if name == "" {
		return "file"
	}
	return name
}

// drafts/{draftID}/{kind}/{uploadID}-{file}
func draftPathBuilder(kind string) PathBuilder {
	return func(params PathParams) (string, error) {
		draftID, err := validateSegment("draftID", params.DraftID)
		if err != nil {
			return "", err
		}
		uploadID, err := validateSegment("uploadID", params.UploadID)
		if err != nil {
			return "", err
		}
		fileName, err := validateFileName(SanitizeFileName(params.FileName))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("drafts/%s/%s/%s-%s", draftID, kind, uploadID, fileName), nil
	}
}

// StagedByDraft reports whether key was staged under drafts/{draftID}/.
func StagedByDraft(draftID, key string) bool {
	draftID, err := validateSegment("draftID", draftID)
	if err != nil {
		return false
	}
	if key == "" || path.Clean(key) != key || strings.Contains(key, "\\") {
		return false
	}
	return strings.HasPrefix(key, "drafts/"+draftID+"/")
}

// galleries/{kind}/{yyyy}/{mm}/{unixMillis}-{uploadID}-{file}
func publishedPathBuilder(kind string) PathBuilder {
	return func(params PathParams) (string, error) {
		uploadID, err := validateSegment("uploadID", params.UploadID)
		if err != nil {
			return "", err
		}
		if params.At.IsZero() {
			return "", fmt.Errorf("storage: timestamp is required")
		}
		fileName, err := validateFileName(SanitizeFileName(params.FileName))
		if err != nil {
			return "", err
		}
		at := params.At.UTC()
		return fmt.Sprintf("galleries/%s/%04d/%02d/%d-%s-%s", kind, at.Year(), int(at.Month()), at.UnixMilli(), uploadID, fileName), nil
	}
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}

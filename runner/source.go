package runner

import (
	"github.com/richinsley/comfyagent/catalog"
	"github.com/richinsley/comfyagent/comfyerr"
)

// RunSource is the preset source requested for a run.
type RunSource string

const (
	RunSourceAuto          RunSource = "auto"
	RunSourceLocal         RunSource = "local"
	RunSourceRemote        RunSource = "remote"
	RunSourceRemoteCatalog RunSource = "remote-catalog"
)

// ResolveRunSource parses the --source value of run. Empty means auto.
func ResolveRunSource(v string) (RunSource, error) {
	switch RunSource(v) {
	case "", RunSourceAuto:
		return RunSourceAuto, nil
	case RunSourceLocal, RunSourceRemote, RunSourceRemoteCatalog:
		return RunSource(v), nil
	}
	return "", comfyerr.New(comfyerr.InvalidParam, "invalid run source").
		WithDetails(map[string]any{"value": v})
}

// SelectRunSource picks where the preset is loaded from. An explicit source
// must be present; auto prefers local over remote and never picks the catalog.
func SelectRunSource(requested RunSource, hasLocal, hasRemote, hasCatalog bool) (catalog.Source, error) {
	switch requested {
	case RunSourceLocal:
		if hasLocal {
			return catalog.SourceLocal, nil
		}
	case RunSourceRemote:
		if hasRemote {
			return catalog.SourceRemote, nil
		}
	case RunSourceRemoteCatalog:
		if hasCatalog {
			return catalog.SourceRemoteCatalog, nil
		}
	default:
		if hasLocal {
			return catalog.SourceLocal, nil
		}
		if hasRemote {
			return catalog.SourceRemote, nil
		}
	}
	return "", comfyerr.New(comfyerr.PresetNotFound, "preset not found")
}

// ResolveSelectedRunSource is SelectRunSource, except that a failed remote
// lookup is reported instead of a bare not-found.
func ResolveSelectedRunSource(requested RunSource, hasLocal, hasRemote, hasCatalog bool, remoteErr, catalogErr error) (catalog.Source, error) {
	src, err := SelectRunSource(requested, hasLocal, hasRemote, hasCatalog)
	if err == nil {
		return src, nil
	}
	if remoteErr != nil && requested != RunSourceLocal && requested != RunSourceRemoteCatalog {
		return "", remoteErr
	}
	if catalogErr != nil {
		return "", catalogErr
	}
	return "", err
}

// InspectSource is the preset source requested for preset show.
type InspectSource string

const (
	InspectSourceAuto   InspectSource = "auto"
	InspectSourceLocal  InspectSource = "local"
	InspectSourceRemote InspectSource = "remote"
)

func ResolveInspectSource(v string) (InspectSource, error) {
	switch InspectSource(v) {
	case "", InspectSourceAuto:
		return InspectSourceAuto, nil
	case InspectSourceLocal, InspectSourceRemote:
		return InspectSource(v), nil
	}
	return "", comfyerr.New(comfyerr.InvalidParam, "invalid preset source").
		WithDetails(map[string]any{"value": v})
}

// SelectInspectSource is like SelectRunSource, but auto refuses to choose
// when the name exists both locally and remotely.
func SelectInspectSource(requested InspectSource, hasLocal, hasRemote bool) (catalog.Source, error) {
	notFound := comfyerr.New(comfyerr.PresetNotFound, "preset not found")
	switch requested {
	case InspectSourceLocal:
		if !hasLocal {
			return "", notFound
		}
		return catalog.SourceLocal, nil
	case InspectSourceRemote:
		if !hasRemote {
			return "", notFound
		}
		return catalog.SourceRemote, nil
	}
	switch {
	case hasLocal && hasRemote:
		return "", comfyerr.New(comfyerr.PresetSourceAmbiguous, "preset exists both locally and remotely, pass --source")
	case hasLocal:
		return catalog.SourceLocal, nil
	case hasRemote:
		return catalog.SourceRemote, nil
	}
	return "", notFound
}

// ListSource selects which sources list reads.
type ListSource string

const (
	ListSourceAll           ListSource = "all"
	ListSourceLocal         ListSource = "local"
	ListSourceRemote        ListSource = "remote"
	ListSourceRemoteCatalog ListSource = "remote-catalog"
)

func ResolveListSource(v string) (ListSource, error) {
	switch ListSource(v) {
	case "", ListSourceAll:
		return ListSourceAll, nil
	case ListSourceLocal, ListSourceRemote, ListSourceRemoteCatalog:
		return ListSource(v), nil
	}
	return "", comfyerr.New(comfyerr.InvalidParam, "invalid list source").
		WithDetails(map[string]any{"value": v})
}

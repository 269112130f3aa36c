package steering

import "net/http"

// Manifest is the steering manifest JSON document returned by /<path>.
type Manifest struct {
	Version         int            `json:"VERSION"`
	TTL             int            `json:"TTL"`
	ReloadURI       string         `json:"RELOAD-URI"`
	PathwayPriority []string       `json:"PATHWAY-PRIORITY"`
	PathwayClones   []PathwayClone `json:"PATHWAY-CLONES,omitempty"`
}

// PathwayClone names an alternative origin for the baseline "cloud" pathway.
type PathwayClone struct {
	BaseID string             `json:"BASE-ID"`
	ID     string             `json:"ID"`
	URI    PathwayCloneTarget `json:"URI-REPLACEMENT"`
}

// PathwayCloneTarget is the replacement origin host for a pathway clone.
type PathwayCloneTarget struct {
	Host string `json:"HOST"`
}

const baselinePathway = "cloud"

// buildManifest composes the steering manifest from the ranked arm list
// and the incoming request's scheme/host.
func buildManifest(r *http.Request, ranked []string) Manifest {
	m := Manifest{
		Version:         1,
		TTL:             5,
		ReloadURI:       reloadURI(r),
		PathwayPriority: append(append([]string{}, ranked...), baselinePathway),
	}
	if len(ranked) == 0 {
		return m
	}
	clones := make([]PathwayClone, 0, len(ranked))
	for _, arm := range ranked {
		clones = append(clones, PathwayClone{
			BaseID: baselinePathway,
			ID:     arm,
			URI:    PathwayCloneTarget{Host: "https://" + arm},
		})
	}
	m.PathwayClones = clones
	return m
}

func reloadURI(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + r.URL.Path
}

package atls

import (
	"encoding/json"
	"time"
)

// tcbInfoFields mirrors the fields of Intel's TCB Info JSON document
// that this core needs: staleness (next_update, spec §4.4) and, for
// the optional grace-period feature, the matched tcb_date (see
// gracewindow.go, grounded on
// original_source/core/src/tdx/grace_period.rs).
type tcbInfoFields struct {
	ID         string     `json:"id"`
	Version    int        `json:"version"`
	FMSPC      string     `json:"fmspc"`
	NextUpdate string     `json:"nextUpdate"`
	TcbLevels  []tcbLevel `json:"tcbLevels"`
}

type tcbInfoDoc struct {
	TcbInfo tcbInfoFields `json:"tcbInfo"`
}

type tcbLevel struct {
	Tcb     tcbFields `json:"tcb"`
	TcbDate string    `json:"tcbDate"`
	Status  string    `json:"tcbStatus"`
}

type tcbFields struct {
	SgxComponents []tcbComponent `json:"sgxtcbcomponents"`
	TdxComponents []tcbComponent `json:"tdxtcbcomponents"`
	PceSvn        uint16         `json:"pcesvn"`
}

type tcbComponent struct {
	Svn uint8 `json:"svn"`
}

// parseTcbInfoFields accepts either the {"tcbInfo": {...}, "signature":
// ...} wrapped shape or a bare TCB info object, since dcap-qvl
// deployments have been observed to hand back both.
func parseTcbInfoFields(raw string) (tcbInfoFields, bool) {
	var wrapped tcbInfoDoc
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.TcbInfo.FMSPC != "" {
		return wrapped.TcbInfo, true
	}
	var bare tcbInfoFields
	if err := json.Unmarshal([]byte(raw), &bare); err != nil {
		return tcbInfoFields{}, false
	}
	return bare, bare.FMSPC != ""
}

// parseTCBInfoNextUpdate best-effort extracts and parses the
// next_update timestamp used to detect collateral staleness (spec
// §4.4). If the field is missing or malformed the cache treats the
// entry as immediately stale rather than caching indefinitely.
func parseTCBInfoNextUpdate(raw string) time.Time {
	fields, ok := parseTcbInfoFields(raw)
	if !ok || fields.NextUpdate == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, fields.NextUpdate)
	if err != nil {
		return time.Time{}
	}
	return t
}

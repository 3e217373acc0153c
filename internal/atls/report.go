package atls

// Report is the tagged sum of verification outcomes returned to the
// caller on success (spec §3, §4.9, §6). TdxReport is the only
// variant today; the Type discriminator lets callers switch on it
// without a type assertion failing silently when a future TEE variant
// is added.
type Report struct {
	Type TeeType
	Tdx  *TdxReport
}

// TeeType names the TEE family a Report describes.
type TeeType string

// TeeTypeTDX is the only TeeType this core implements.
const TeeTypeTDX TeeType = "tdx"

// TdxReport is the TDX verification outcome (spec §4.9). All hex
// fields are lowercase.
type TdxReport struct {
	TeeType     TeeType  `json:"tee_type"`
	Measurement string   `json:"measurement"` // MRTD, hex
	TcbStatus   string   `json:"tcb_status"`
	AdvisoryIDs []string `json:"advisory_ids"`
	RTMR        [4]string `json:"rtmr"` // RTMR0..3, hex
	MRTD        string   `json:"mrtd"`
}

// Collected is the minimal caller-facing shape named in spec §6:
// callers that surface attestation data to applications must include
// at least these fields.
type Collected struct {
	Trusted     bool     `json:"trusted"`
	TeeType     TeeType  `json:"tee_type"`
	TcbStatus   string   `json:"tcb_status"`
	Measurement string   `json:"measurement"`
	AdvisoryIDs []string `json:"advisory_ids"`
}

// Collect projects a successful Report into the minimal caller-facing
// shape with Trusted set to true. For a Report that carries no TDX
// variant (e.g. the zero Report) it returns the zero Collected, with
// Trusted false. Connect never returns a partial Report.
func (r Report) Collect() Collected {
	if r.Type == TeeTypeTDX && r.Tdx != nil {
		return Collected{
			Trusted:     true,
			TeeType:     r.Tdx.TeeType,
			TcbStatus:   r.Tdx.TcbStatus,
			Measurement: r.Tdx.Measurement,
			AdvisoryIDs: r.Tdx.AdvisoryIDs,
		}
	}
	return Collected{}
}

package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Well-known step data keys. Anything else is carried through untouched.
const (
	KeyProjectID     = "projectId"
	KeyClientID      = "clientId"
	KeyDomain        = "domain"
	KeySubdomain     = "subdomain"
	KeyRootDomain    = "rootDomain"
	KeyClientName    = "clientName"
	KeyAdminEmail    = "adminEmail"
	KeyAdminPassword = "adminPassword"
	KeyCurrentStep   = "currentStep"
	KeyBaseDir       = "baseDir"
	KeyServerIP      = "serverIp"
	KeyZoneID        = "zoneId"
)

// StepData is the JSON object stored on a step: wizard input for PRE_INSTALLATION,
// input parameters and intermediate data for provisioning steps.
type StepData map[string]any

// Merge returns a copy of d with the top-level keys of partial replacing stored keys.
// Keys absent from partial are retained.
func (d StepData) Merge(partial StepData) StepData {
	out := make(StepData, len(d)+len(partial))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

func (d StepData) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int64 reads numeric ids that arrive either as JSON numbers or numeric strings.
func (d StepData) Int64(key string) (int64, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

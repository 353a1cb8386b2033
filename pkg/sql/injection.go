package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes an injection pattern found in a bound
// parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string
	ParamName   string
	ParamValue  any
}

// CheckParameterForInjection runs libinjection over a parameter value that
// originated from user text (state names, diagnosis terms). Only strings are
// checked; other types cannot carry injection payloads.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckAllParameters validates every bound parameter, returning one result
// per offending value. Empty result means all parameters are clean.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}

package models

// Response envelope. External callers key behavior off the discriminant tag
// and the code: "0" is success, anything else carries errNo and errMsg.
const (
	CodeOK   = "0"
	CodeFail = "3"
)

// OK builds a success envelope with operation-specific fields merged in.
func OK(what string, fields map[string]any) map[string]any {
	resp := map[string]any{"what": what, "code": CodeOK}
	for k, v := range fields {
		resp[k] = v
	}
	return resp
}

// Fail builds a failure envelope from the error taxonomy.
func Fail(what string, err error) map[string]any {
	return map[string]any{
		"what":   what,
		"code":   CodeFail,
		"errNo":  ErrNo(err),
		"errMsg": err.Error(),
	}
}

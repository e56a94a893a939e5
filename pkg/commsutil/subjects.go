package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectTraffic   = "bridge.traffic"
	SubjectNativeAll = "native.>"
)

// token makes s safe to use as one subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}

// BuildCallSubject builds the subject native calls for a platform are sent on.
func BuildCallSubject(platform string) string {
	return fmt.Sprintf("native.%s.call", token(platform))
}

// BuildDeliverSubject builds the subject async replies for one client target arrive on.
func BuildDeliverSubject(platform, target string) string {
	return fmt.Sprintf("native.%s.deliver.%s", token(platform), token(target))
}

// BuildTrafficSubject builds a per-operation traffic event subject.
func BuildTrafficSubject(module, operation string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectTraffic, token(module), token(operation))
}

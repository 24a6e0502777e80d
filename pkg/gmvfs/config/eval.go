package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-cty-funcs/encoding"
	"github.com/hashicorp/go-cty-funcs/filesystem"
	"github.com/hashicorp/hcl/v2"
	"github.com/sosodev/duration"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

func functions() map[string]function.Function {
	return map[string]function.Function{
		"lower":     stdlib.LowerFunc,
		"upper":     stdlib.UpperFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"replace":   stdlib.ReplaceFunc,
		"join":      stdlib.JoinFunc,
		"coalesce":  stdlib.CoalesceFunc,
		"format":    stdlib.FormatFunc,

		"abspath":    filesystem.AbsPathFunc,
		"basename":   filesystem.BasenameFunc,
		"dirname":    filesystem.DirnameFunc,
		"pathexpand": filesystem.PathExpandFunc,

		"base64encode": encoding.Base64EncodeFunc,
		"base64decode": encoding.Base64DecodeFunc,
		"urlencode":    encoding.URLEncodeFunc,
	}
}

// parseDuration evaluates expr as a duration: a number of seconds, an ISO
// 8601 duration such as "PT5M", or a Go duration such as "5m". A missing or
// null expression yields def.
func parseDuration(expr hcl.Expression, evalCtx *hcl.EvalContext, def time.Duration) (time.Duration, hcl.Diagnostics) {
	if expr == nil {
		return def, nil
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return def, diags
	}
	if val.IsNull() {
		return def, diags
	}

	invalid := func(detail string) (time.Duration, hcl.Diagnostics) {
		return def, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid duration",
			Detail:   detail,
			Subject:  expr.Range().Ptr(),
		})
	}

	var d time.Duration
	switch val.Type() {
	case cty.Number:
		seconds, _ := val.AsBigFloat().Float64()
		d = time.Duration(seconds * float64(time.Second))

	case cty.String:
		s := strings.TrimSpace(val.AsString())
		if strings.HasPrefix(s, "P") {
			iso, err := duration.Parse(s)
			if err != nil {
				return invalid(fmt.Sprintf("Failed to parse ISO 8601 duration %q: %v", s, err))
			}
			d = iso.ToTimeDuration()
		} else {
			parsed, err := time.ParseDuration(s)
			if err != nil {
				return invalid(fmt.Sprintf("Failed to parse duration %q: %v. Expected a number of seconds, an ISO 8601 duration (e.g. \"PT5M\") or a Go duration (e.g. \"5m\")", s, err))
			}
			d = parsed
		}

	default:
		return invalid(fmt.Sprintf("Duration must be a number of seconds or a string, got %s", val.Type().FriendlyName()))
	}

	if d < 0 {
		return invalid("Duration must not be negative")
	}
	return d, diags
}

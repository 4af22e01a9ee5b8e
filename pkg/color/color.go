package color

import (
	"fmt"

	formatter "github.com/onsi/ginkgo/v2/formatter"
)

// Outputs to stdout.
//
// e.g.,
//   Outf("{{green}}{{bold}}created %q{{/}}", "peer0")
//
// ref.
// https://github.com/onsi/ginkgo/blob/v2.0.0/formatter/formatter.go#L52-L73
func Outf(format string, args ...interface{}) {
	s := formatter.F(format, args...)
	fmt.Fprint(formatter.ColorableStdOut, s)
}

// Outputs to stderr.
func Errf(format string, args ...interface{}) {
	s := formatter.F(format, args...)
	fmt.Fprint(formatter.ColorableStdErr, s)
}

func Greenf(format string, args ...interface{}) {
	f := fmt.Sprintf("{{green}}%s{{/}}", format)
	Outf(f, args...)
}

func Redf(format string, args ...interface{}) {
	f := fmt.Sprintf("{{red}}%s{{/}}", format)
	Errf(f, args...)
}

func Bluef(format string, args ...interface{}) {
	f := fmt.Sprintf("{{blue}}%s{{/}}", format)
	Outf(f, args...)
}

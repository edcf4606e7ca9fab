// Package lib embeds the language-level prelude and the C runtime
// header that the parser adds to every program's embedded headers
// alongside it, so both ship
// inside the compiler binary rather than needing to be located on
// disk at run time (grounded on clarete-langlang's go:embed of its
// bundled VM source, go/genc.go).
package lib

import _ "embed"

//go:embed prelude.ae
var Prelude string

//go:embed prelude.h
var PreludeHeader string

//go:build llama

package executor

// cgo link directives for the in-process llama backend, unchanged from the
// teacher's internal/manager/llama_cgo.go: an rpath of $ORIGIN so the
// runtime loader finds libllama.so/libggml*.so next to the built binary,
// and a link-time search path for the 'llama' build variant.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

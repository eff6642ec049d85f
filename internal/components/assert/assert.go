package assert

// True panics with `msg` when `cond` does not hold. It guards programmer errors,
// never input from outside the process.
func True(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

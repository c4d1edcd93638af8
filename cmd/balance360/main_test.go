package main

import (
	stdtesting "testing"

	bt "github.com/esgari/balance360/testing"
)

func TestMain(m *stdtesting.M) {
	bt.TestMain(m)
}

func TestMainReturnsInTestMode(t *stdtesting.T) {
	t.Setenv("MAPPING_URL", "")
	main()
}

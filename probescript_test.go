// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package probescript_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probechain/probescript"
	"github.com/probechain/probescript/config"
)

func TestEngineExecAndCall(t *testing.T) {
	eng := probescript.New(probescript.Options{Config: config.Defaults})

	err := eng.Exec("main", `
func fib(n) {
  if (n < 2) return n;
  return fib(n-1) + fib(n-2);
}
`)
	assert.NoError(t, err)

	got, err := eng.Call("main", "fib", 10)
	assert.NoError(t, err)
	assert.Equal(t, float64(55), got)
}

func TestEnginePrintCallback(t *testing.T) {
	var printed []string
	eng := probescript.New(probescript.Options{
		Config:  config.Defaults,
		OnPrint: func(s string) { printed = append(printed, s) },
	})

	err := eng.Exec("main", `
import "std:io" for print;
print("n=" + 42);
`)
	assert.NoError(t, err)
	if assert.Len(t, printed, 1) {
		assert.Equal(t, "n=42", printed[0])
	}
}

func TestEngineReportsCompileError(t *testing.T) {
	var events []probescript.ErrorEvent
	eng := probescript.New(probescript.Options{
		Config:  config.Defaults,
		OnError: func(ev probescript.ErrorEvent) { events = append(events, ev) },
	})

	err := eng.Exec("main", `var = ;`)
	assert.Error(t, err)
	assert.NotEmpty(t, events)
}

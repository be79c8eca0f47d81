// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"testing"

	"code.hybscloud.com/fiber"
	"github.com/stretchr/testify/require"
)

// TestCoroutineResumeSuspend tests the control transfer sequence between
// the caller and the coroutine body.
func TestCoroutineResumeSuspend(t *testing.T) {
	var steps []string
	var c *fiber.Coroutine
	c = fiber.NewCoroutine(func() {
		steps = append(steps, "body-1")
		c.Suspend()
		steps = append(steps, "body-2")
		c.Suspend()
		steps = append(steps, "body-3")
	})

	if c.Completed() {
		t.Fatal("coroutine completed before first resume")
	}

	steps = append(steps, "caller-1")
	c.Resume()
	steps = append(steps, "caller-2")
	c.Resume()
	steps = append(steps, "caller-3")
	c.Resume()

	if !c.Completed() {
		t.Fatal("coroutine not completed after body returned")
	}
	want := []string{"caller-1", "body-1", "caller-2", "body-2", "caller-3", "body-3"}
	require.Equal(t, want, steps)
}

// TestCoroutinePanicPropagates tests that a panic in the body re-raises
// at the Resume that observed it, leaving the coroutine completed.
func TestCoroutinePanicPropagates(t *testing.T) {
	c := fiber.NewCoroutine(func() {
		panic("boom")
	})

	defer func() {
		r := recover()
		if r != "boom" {
			t.Fatalf("recovered %v, want boom", r)
		}
		if !c.Completed() {
			t.Fatal("panicked coroutine not marked completed")
		}
	}()
	c.Resume()
	t.Fatal("Resume returned instead of panicking")
}

// TestCoroutineDestroyUnwinds tests that destroying a suspended
// coroutine unwinds its stack, running deferred functions.
func TestCoroutineDestroyUnwinds(t *testing.T) {
	unwound := false
	var c *fiber.Coroutine
	c = fiber.NewCoroutine(func() {
		defer func() { unwound = true }()
		c.Suspend()
		t.Error("body continued past Suspend after destroy")
	})

	c.Resume()
	c.Destroy()

	if !unwound {
		t.Fatal("deferred function did not run during destroy")
	}
	if !c.Completed() {
		t.Fatal("destroyed coroutine not marked completed")
	}
}

// TestCoroutineDestroyNeverStarted tests destroying a coroutine whose
// body never ran.
func TestCoroutineDestroyNeverStarted(t *testing.T) {
	ran := false
	c := fiber.NewCoroutine(func() { ran = true })
	c.Destroy()

	if ran {
		t.Fatal("body ran during destroy of a never-started coroutine")
	}
	if !c.Completed() {
		t.Fatal("destroyed coroutine not marked completed")
	}
}

// TestCoroutineResumeCompletedPanics tests the misuse assertion.
func TestCoroutineResumeCompletedPanics(t *testing.T) {
	c := fiber.NewCoroutine(func() {})
	c.Resume()
	require.PanicsWithValue(t, "fiber: resume of a completed coroutine", func() {
		c.Resume()
	})
}

package entityfilter

import "testing"

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f := New(nil, nil)
	if !f.Match("sensor.anything") {
		t.Error("empty filter should match everything")
	}
}

func TestGlobMatch(t *testing.T) {
	f := New([]string{"binary_sensor.*", "sensor.motion"}, nil)

	cases := map[string]bool{
		"binary_sensor.front_door": true,
		"sensor.motion":            true,
		"sensor.temperature":       false,
		"light.kitchen":            false,
	}
	for entity, want := range cases {
		if got := f.Match(entity); got != want {
			t.Errorf("Match(%q) = %v, want %v", entity, got, want)
		}
	}
}

func TestMultiplePatternsAreOred(t *testing.T) {
	f := New([]string{"sensor.a", "sensor.b", "sensor.c"}, nil)
	for _, entity := range []string{"sensor.a", "sensor.b", "sensor.c"} {
		if !f.Match(entity) {
			t.Errorf("Match(%q) = false, want true", entity)
		}
	}
	if f.Match("sensor.d") {
		t.Error("Match(sensor.d) = true, want false")
	}
}

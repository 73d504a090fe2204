package poll

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

func testClimate(id string, temp float64) device.State {
	humidity := 48.0
	return device.State{
		Info:      device.Info{ID: id, Name: "TRV " + id},
		Category:  device.CategoryClimate,
		Available: true,
		Climate: &device.ClimateState{
			TemperatureUnit:    device.UnitCelsius,
			CurrentTemperature: temp,
			CurrentHumidity:    &humidity,
			HVACMode:           device.HVACModeHeat,
			HVACModes:          []device.HVACMode{device.HVACModeOff, device.HVACModeHeat},
			TargetTemperature:  21.0,
			MinTemp:            5,
			MaxTemp:            35,
		},
	}
}

func TestSnapshotAccessors(t *testing.T) {
	taken := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := newSnapshot(device.CategoryClimate, taken, 7, []device.State{
		testClimate("trv-living", 19.5),
		testClimate("trv-bath", 22.0),
	})

	if snap.Category() != device.CategoryClimate {
		t.Errorf("Category() = %q", snap.Category())
	}
	if !snap.Taken().Equal(taken) {
		t.Errorf("Taken() = %v, want %v", snap.Taken(), taken)
	}
	if snap.Seq() != 7 {
		t.Errorf("Seq() = %d, want 7", snap.Seq())
	}
	if snap.Len() != 2 {
		t.Errorf("Len() = %d, want 2", snap.Len())
	}

	ids := snap.IDs()
	if len(ids) != 2 || ids[0] != "trv-bath" || ids[1] != "trv-living" {
		t.Errorf("IDs() = %v, want sorted [trv-bath trv-living]", ids)
	}

	st, ok := snap.Device("trv-living")
	if !ok {
		t.Fatal("Device(trv-living) not found")
	}
	if st.Climate == nil || st.Climate.CurrentTemperature != 19.5 {
		t.Errorf("Device(trv-living) climate = %+v", st.Climate)
	}

	if _, ok := snap.Device("trv-kitchen"); ok {
		t.Error("Device(trv-kitchen) = found, want missing")
	}

	all := snap.All()
	if len(all) != 2 || all[0].Info.ID != "trv-bath" || all[1].Info.ID != "trv-living" {
		t.Errorf("All() order = [%s %s], want [trv-bath trv-living]", all[0].Info.ID, all[1].Info.ID)
	}
}

func TestSnapshotImmutability(t *testing.T) {
	src := testClimate("trv-1", 19.5)
	snap := newSnapshot(device.CategoryClimate, time.Now(), 1, []device.State{src})

	// Mutating the producer's state after construction changes nothing.
	src.Climate.CurrentTemperature = 99
	src.Climate.HVACModes[0] = device.HVACModeCool
	if st, _ := snap.Device("trv-1"); st.Climate.CurrentTemperature != 19.5 {
		t.Errorf("producer mutation leaked in: temperature = %v", st.Climate.CurrentTemperature)
	}
	if st, _ := snap.Device("trv-1"); st.Climate.HVACModes[0] != device.HVACModeOff {
		t.Errorf("producer mutation leaked in: modes = %v", st.Climate.HVACModes)
	}

	// Mutating a returned state does not affect later reads.
	got, _ := snap.Device("trv-1")
	got.Climate.TargetTemperature = 30
	*got.Climate.CurrentHumidity = 10
	again, _ := snap.Device("trv-1")
	if again.Climate.TargetTemperature != 21.0 {
		t.Errorf("reader mutation leaked in: target = %v", again.Climate.TargetTemperature)
	}
	if *again.Climate.CurrentHumidity != 48.0 {
		t.Errorf("reader mutation leaked in: humidity = %v", *again.Climate.CurrentHumidity)
	}

	// The IDs slice is a copy too.
	ids := snap.IDs()
	ids[0] = "mangled"
	if snap.IDs()[0] != "trv-1" {
		t.Errorf("IDs() shares backing array: %v", snap.IDs())
	}
}

func TestSnapshotDuplicateIDsLastWins(t *testing.T) {
	snap := newSnapshot(device.CategoryClimate, time.Now(), 1, []device.State{
		testClimate("trv-1", 18.0),
		testClimate("trv-1", 20.0),
	})

	if snap.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", snap.Len())
	}
	st, _ := snap.Device("trv-1")
	if st.Climate.CurrentTemperature != 20.0 {
		t.Errorf("duplicate resolution kept %v, want the later state", st.Climate.CurrentTemperature)
	}
	if ids := snap.IDs(); len(ids) != 1 {
		t.Errorf("IDs() = %v, want a single entry", ids)
	}
}

func TestEmptySnapshot(t *testing.T) {
	snap := emptySnapshot(device.CategoryBinarySensor)

	if snap.Len() != 0 || snap.Seq() != 0 || !snap.Taken().IsZero() {
		t.Errorf("empty snapshot: len=%d seq=%d taken=%v", snap.Len(), snap.Seq(), snap.Taken())
	}
	if snap.Category() != device.CategoryBinarySensor {
		t.Errorf("Category() = %q", snap.Category())
	}
	if _, ok := snap.Device("bs-1"); ok {
		t.Error("Device() on empty snapshot = found")
	}
	if got := snap.All(); len(got) != 0 {
		t.Errorf("All() = %v, want empty", got)
	}
}

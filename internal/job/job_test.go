package job

import "testing"

func TestContainerNameIsDeterministic(t *testing.T) {
	first := ContainerName(1, 2)
	second := ContainerName(1, 2)
	if first != second {
		t.Fatalf("expected identical names for identical ids, got %q and %q", first, second)
	}
	if first != "abstruse_1_2" {
		t.Fatalf("unexpected derived name: %q", first)
	}
}

func TestContainerNameDistinguishesJobs(t *testing.T) {
	if ContainerName(1, 2) == ContainerName(1, 3) {
		t.Fatal("expected distinct names for distinct job ids")
	}
	if ContainerName(1, 2) == ContainerName(2, 1) {
		t.Fatal("expected build and job ids to occupy fixed positions")
	}
}

func TestProcessContainerNameMatchesDerivation(t *testing.T) {
	p := Process{BuildID: 523, JobID: 77}
	if got, want := p.ContainerName(), ContainerName(523, 77); got != want {
		t.Fatalf("unexpected process container name: got %q want %q", got, want)
	}
}

package ports

import (
	"context"
	"reflect"
	"testing"
	"time"

	"videostream/internal/domain"
)

func TestJobRepositoryInterface(t *testing.T) {
	typ := reflect.TypeOf((*JobRepository)(nil)).Elem()

	assertMethod(t, typ, "Create", []reflect.Type{
		contextType(),
		reflect.TypeOf(domain.ProcessingJob{}),
	}, []reflect.Type{errorType()})

	assertMethod(t, typ, "ClaimNext", []reflect.Type{
		contextType(),
		reflect.TypeOf(domain.JobType("")),
		reflect.TypeOf(""),
		reflect.TypeOf(time.Time{}),
	}, []reflect.Type{
		reflect.TypeOf(domain.ProcessingJob{}),
		errorType(),
	})

	assertMethod(t, typ, "Fail", []reflect.Type{
		contextType(),
		reflect.TypeOf(domain.JobID("")),
		reflect.TypeOf(""),
		reflect.TypeOf(time.Time{}),
	}, []reflect.Type{errorType()})

	assertMethod(t, typ, "ListStale", []reflect.Type{
		contextType(),
		reflect.TypeOf(time.Time{}),
	}, []reflect.Type{
		reflect.SliceOf(reflect.TypeOf(domain.ProcessingJob{})),
		errorType(),
	})
}

func TestSegmenterInterface(t *testing.T) {
	typ := reflect.TypeOf((*Segmenter)(nil)).Elem()

	assertMethod(t, typ, "Segment", []reflect.Type{
		contextType(),
		reflect.TypeOf(domain.RenditionArtifact{}),
		reflect.TypeOf(""),
		reflect.TypeOf(float64(0)),
	}, []reflect.Type{
		reflect.TypeOf(domain.SegmentSet{}),
		errorType(),
	})
}

func TestEventBrokerInterface(t *testing.T) {
	typ := reflect.TypeOf((*EventBroker)(nil)).Elem()

	assertMethod(t, typ, "Publish", []reflect.Type{
		contextType(),
		reflect.TypeOf(""),
		reflect.TypeOf([]byte(nil)),
	}, []reflect.Type{errorType()})

	assertMethod(t, typ, "Subscribe", []reflect.Type{
		contextType(),
		reflect.TypeOf(""),
	}, []reflect.Type{
		reflect.TypeOf((*Subscription)(nil)).Elem(),
		errorType(),
	})
}

func assertMethod(t *testing.T, typ reflect.Type, name string, in []reflect.Type, out []reflect.Type) {
	t.Helper()
	method, ok := typ.MethodByName(name)
	if !ok {
		t.Fatalf("%s missing method %s", typ.Name(), name)
	}
	mt := method.Type
	if mt.NumIn() != len(in) {
		t.Fatalf("%s.%s expects %d args, got %d", typ.Name(), name, len(in), mt.NumIn())
	}
	for i, want := range in {
		if mt.In(i) != want {
			t.Fatalf("%s.%s arg %d = %s, want %s", typ.Name(), name, i, mt.In(i), want)
		}
	}
	if mt.NumOut() != len(out) {
		t.Fatalf("%s.%s returns %d values, got %d", typ.Name(), name, len(out), mt.NumOut())
	}
	for i, want := range out {
		if mt.Out(i) != want {
			t.Fatalf("%s.%s result %d = %s, want %s", typ.Name(), name, i, mt.Out(i), want)
		}
	}
}

func contextType() reflect.Type {
	return reflect.TypeOf((*context.Context)(nil)).Elem()
}

func errorType() reflect.Type {
	return reflect.TypeOf((*error)(nil)).Elem()
}

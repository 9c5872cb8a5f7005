package csvcodec

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseLine_QuotedCommaStaysInField(t *testing.T) {
	t.Parallel()

	got := ParseLine(`a,"b,c",d`)
	want := []string{"a", "b,c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestParseLine_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	got := ParseLine(`  a , b ,c  `)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestParseLine_TrailingEmptyField(t *testing.T) {
	t.Parallel()

	got := ParseLine(`a,b,`)
	want := []string{"a", "b", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestParseLine_EmptyLineYieldsOneEmptyField(t *testing.T) {
	t.Parallel()

	got := ParseLine("")
	want := []string{""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestParseLine_DoubledQuoteDropsOut(t *testing.T) {
	t.Parallel()

	// The sheet's convention: "" toggles quoted mode twice and vanishes.
	got := ParseLine(`"say ""hi"", please",x`)
	want := []string{"say hi, please", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestParseLine_UnterminatedQuoteDegrades(t *testing.T) {
	t.Parallel()

	got := ParseLine(`a,"b,c`)
	want := []string{"a", "b,c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestEncode_EmptyRows(t *testing.T) {
	t.Parallel()

	if got := Encode([]string{"a", "b"}, nil); got != "" {
		t.Fatalf("got=%q want empty", got)
	}
}

func TestEncode_RendersValues(t *testing.T) {
	t.Parallel()

	var nilNote *string
	note := "has, comma"
	got := Encode(
		[]string{"rut", "nombre", "asistio", "edad", "notas", "vacio"},
		[][]any{
			{"12.345.678-9", "Ana María", true, 34, &note, nilNote},
			{"VISITA-1", `say "hi"`, false, 0, nil, nil},
		},
	)

	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d body=%q", len(lines), got)
	}
	if lines[0] != "rut,nombre,asistio,edad,notas,vacio" {
		t.Fatalf("header=%q", lines[0])
	}
	if lines[1] != `12.345.678-9,Ana María,true,34,"has, comma",` {
		t.Fatalf("row1=%q", lines[1])
	}
	if lines[2] != `VISITA-1,say ""hi"",false,0,,` {
		t.Fatalf("row2=%q", lines[2])
	}
}

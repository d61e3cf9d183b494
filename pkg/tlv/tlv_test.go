package tlv

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// deviceInstance is the Device object example from the LwM2M 1.1 core
// document (Instance 0 with 13 resources).
var deviceInstance = []byte{
	0x08, 0x00, 0x79,
	0xC8, 0x00, 0x14, 0x4F, 0x70, 0x65, 0x6E, 0x20, 0x4D, 0x6F, 0x62, 0x69, 0x6C, 0x65, 0x20, 0x41, 0x6C, 0x6C, 0x69, 0x61, 0x6E, 0x63, 0x65,
	0xC8, 0x01, 0x16, 0x4C, 0x69, 0x67, 0x68, 0x74, 0x77, 0x65, 0x69, 0x67, 0x74, 0x20, 0x4D, 0x32, 0x4D, 0x20, 0x43, 0x6C, 0x69, 0x65, 0x6E, 0x74, 0x74,
	0xC8, 0x02, 0x09, 0x33, 0x34, 0x35, 0x30, 0x30, 0x30, 0x31, 0x32, 0x33,
	0xC3, 0x03, 0x31, 0x2E, 0x30,
	0x86, 0x06,
	0x41, 0x00, 0x01,
	0x41, 0x01, 0x05,
	0x88, 0x07, 0x08,
	0x42, 0x00, 0x0E, 0xD8,
	0x42, 0x01, 0x13, 0x88,
	0x87, 0x08,
	0x41, 0x00, 0x7D,
	0x42, 0x01, 0x03, 0x84,
	0xC1, 0x09, 0x64,
	0xC1, 0x0A, 0x0F,
	0x83, 0x0B,
	0x41, 0x00, 0x00,
	0xC4, 0x0D, 0x51, 0x82, 0x42, 0x8F,
	0xC6, 0x0E, 0x2B, 0x30, 0x32, 0x3A, 0x30, 0x30,
	0xC1, 0x10, 0x55,
}

func TestDecodeDeviceInstance(t *testing.T) {
	records, err := Decode(deviceInstance)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(records) != 1 || records[0].Type != ObjectInstance || records[0].ID != 0 {
		t.Fatalf("top level: got %v", records)
	}
	inst := records[0]
	if len(inst.Children) != 13 {
		t.Fatalf("children: got %d, want 13", len(inst.Children))
	}
	if got, err := inst.Children[0].Text(); err != nil || got != "Open Mobile Alliance" {
		t.Errorf("manufacturer: got %q/%v", got, err)
	}

	voltages := inst.Children[5]
	if voltages.Type != MultipleResource || voltages.ID != 7 || len(voltages.Children) != 2 {
		t.Fatalf("resource 7: got %v", voltages)
	}
	if v, _ := voltages.Children[0].Int(); v != 0x0ed8 {
		t.Errorf("voltage 0: got %#x", v)
	}

	declared := int(deviceInstance[2])
	sum := 0
	for _, c := range inst.Children {
		sum += EncodedLen(c)
	}
	if sum != declared {
		t.Errorf("children sizes: got %d, want declared %d", sum, declared)
	}

	encoded, err := Encode(records)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(encoded, deviceInstance) {
		t.Errorf("Encode: got %x, want %x", encoded, deviceInstance)
	}
}

func TestFlatten(t *testing.T) {
	records, err := Decode(deviceInstance)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	values, err := Flatten(lwm2m.MustPath(3), records)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if got := string(values[lwm2m.MustPath(3, 0, 3)]); got != "1.0" {
		t.Errorf("/3/0/3: got %q", got)
	}
	if got := values[lwm2m.MustPath(3, 0, 6, 1)]; !bytes.Equal(got, []byte{0x05}) {
		t.Errorf("/3/0/6/1: got %x", got)
	}

	single := []Record{NewResource(1, Int(60))}
	values, err = Flatten(lwm2m.MustPath(1, 1, 1), single)
	if err != nil {
		t.Fatalf("Flatten resource: %v", err)
	}
	if _, ok := values[lwm2m.MustPath(1, 1, 1)]; !ok {
		t.Errorf("resource write should map to /1/1/1: %v", values)
	}
}

func TestHeaderEncoding(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want []byte
	}{
		{"inline length", NewResource(1, []byte{0x3c}), []byte{0xc1, 0x01, 0x3c}},
		{"16-bit id", NewResource(300, []byte{0x01}), []byte{0xe1, 0x01, 0x2c, 0x01}},
		{"8-bit length", NewResource(0, bytes.Repeat([]byte{'a'}, 8)), append([]byte{0xc8, 0x00, 0x08}, bytes.Repeat([]byte{'a'}, 8)...)},
		{"16-bit length", NewResource(0, make([]byte, 256)), append([]byte{0xd0, 0x00, 0x01, 0x00}, make([]byte, 256)...)},
		{"24-bit length", NewResource(0, make([]byte, 70000)), append([]byte{0xd8, 0x00, 0x01, 0x11, 0x70}, make([]byte, 70000)...)},
		{"empty instance", NewInstance(1), []byte{0x00, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode([]Record{tt.rec})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode: got %x, want %x", got[:min(len(got), 8)], tt.want[:min(len(tt.want), 8)])
			}
			back, err := Decode(got)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(back) != 1 || back[0].ID != tt.rec.ID || !bytes.Equal(back[0].Value, tt.rec.Value) {
				t.Errorf("Decode: got %v", back)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated id", []byte{0xc1}},
		{"truncated 16-bit id", []byte{0xe1, 0x01}},
		{"truncated length", []byte{0xc8, 0x00}},
		{"value too short", []byte{0xc3, 0x00, 0x01}},
		{"resource instance in instance", []byte{0x03, 0x00, 0x41, 0x00, 0x01}},
		{"resource in multiple resource", []byte{0x83, 0x00, 0xc1, 0x00, 0x01}},
		{"child overruns composite", []byte{0x03, 0x00, 0xc2, 0x00, 0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode(%x): got %v, want ErrMalformed", tt.data, err)
			}
			if coap.CodeOf(err) != coap.BadRequest {
				t.Errorf("CodeOf: got %s, want 4.00", coap.CodeOf(err))
			}
		})
	}
}

func TestEncodeRejectsBadNesting(t *testing.T) {
	bad := Record{Type: ObjectInstance, ID: 0, Children: []Record{NewResourceInstance(0, []byte{1})}}
	if _, err := Encode([]Record{bad}); err == nil {
		t.Error("Encode: expected error for resource instance inside instance")
	}
}

func TestValueEncoders(t *testing.T) {
	intTests := []struct {
		v    int64
		size int
	}{
		{0, 1}, {127, 1}, {-128, 1}, {128, 2}, {-129, 2},
		{32767, 2}, {32768, 4}, {math.MaxInt32, 4}, {math.MaxInt32 + 1, 8}, {math.MinInt64, 8},
	}
	for _, tt := range intTests {
		b := Int(tt.v)
		if len(b) != tt.size {
			t.Errorf("Int(%d): got %d bytes, want %d", tt.v, len(b), tt.size)
		}
		got, err := NewResource(0, b).Int()
		if err != nil || got != tt.v {
			t.Errorf("Int(%d) round trip: got %d/%v", tt.v, got, err)
		}
	}

	if b := Float(1.5); len(b) != 4 {
		t.Errorf("Float(1.5): got %d bytes, want 4", len(b))
	}
	if b := Float(0.1); len(b) != 8 {
		t.Errorf("Float(0.1): got %d bytes, want 8", len(b))
	}
	if f, _ := NewResource(0, Float(0.1)).Float(); f != 0.1 {
		t.Errorf("Float(0.1) round trip: got %v", f)
	}

	if b, _ := NewResource(0, Bool(true)).Bool(); !b {
		t.Error("Bool(true) round trip failed")
	}
	if _, err := NewResource(0, []byte{2}).Bool(); err == nil {
		t.Error("Bool(0x02): expected error")
	}

	obj, inst, err := NewResource(0, ObjLnk(3, 0)).ObjLnk()
	if err != nil || obj != 3 || inst != 0 {
		t.Errorf("ObjLnk round trip: got %d:%d/%v", obj, inst, err)
	}
	if got, err := String("1.0"); err != nil || !bytes.Equal(got, []byte("1.0")) {
		t.Errorf("String: got %x/%v", got, err)
	}
	if got, err := String("Zähler"); err != nil || !bytes.Equal(got, []byte("Zähler")) {
		t.Errorf("String(utf-8): got %x/%v", got, err)
	}
	if _, err := String("\xff\xfe"); !errors.Is(err, ErrMalformed) {
		t.Errorf("String(invalid): got %v, want ErrMalformed", err)
	}
	if _, err := NewResource(0, []byte{0x41, 0xc3}).Text(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Text(truncated utf-8): got %v, want ErrMalformed", err)
	}
}

func TestNewMultipleResourceOrdersInstances(t *testing.T) {
	rec := NewMultipleResource(6, map[uint16][]byte{5: {5}, 1: {1}, 3: {3}})
	for i, want := range []uint16{1, 3, 5} {
		if rec.Children[i].ID != want {
			t.Errorf("child %d: got %d, want %d", i, rec.Children[i].ID, want)
		}
	}
}

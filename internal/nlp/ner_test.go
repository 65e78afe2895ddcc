package nlp

import (
	"encoding/json"
	"testing"
)

func TestEntityRecognizer_Recognize(t *testing.T) {
	r := NewEntityRecognizer([]string{"Item"})
	r.AddPhrase("Item", []string{"milk"})
	r.AddPhrase("Item", []string{"almond", "milk"})
	r.AddPhrase("ListType", []string{"groceries"})
	if err := r.AddPattern("Ticket", `TKT-\d+`); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPattern("Nut", `(?i)almond`); err != nil {
		t.Fatal(err)
	}

	text := "Add Almond milk to groceries for TKT-42"
	ents := r.Recognize(text, Tokenize(text))

	want := []Entity{
		{Label: "Item", Text: "Almond milk", Start: 4, End: 15},
		{Label: "ListType", Text: "groceries", Start: 19, End: 28},
		{Label: "Ticket", Text: "TKT-42", Start: 33, End: 39},
	}
	if len(ents) != len(want) {
		t.Fatalf("Recognize() = %+v, want %+v", ents, want)
	}
	for i := range want {
		if ents[i] != want[i] {
			t.Errorf("ents[%d] = %+v, want %+v", i, ents[i], want[i])
		}
	}

	labels := r.Labels
	if len(labels) != 4 || labels[0] != "Item" || labels[3] != "Ticket" {
		t.Errorf("Labels = %v", labels)
	}
}

func TestEntityRecognizer_MajorityLabel(t *testing.T) {
	r := NewEntityRecognizer(nil)
	r.AddPhrase("Item", []string{"milk"})
	r.AddPhrase("Color", []string{"milk"})
	r.AddPhrase("Item", []string{"milk"})

	ents := r.Recognize("milk", Tokenize("milk"))
	if len(ents) != 1 || ents[0].Label != "Item" {
		t.Errorf("Recognize() = %+v, want one Item", ents)
	}
}

func TestEntityRecognizer_UnicodeOffsets(t *testing.T) {
	r := NewEntityRecognizer(nil)
	if err := r.AddPattern("Num", `\d+`); err != nil {
		t.Fatal(err)
	}
	text := "añade 3 cafés"
	ents := r.Recognize(text, Tokenize(text))
	if len(ents) != 1 || ents[0].Start != 6 || ents[0].End != 7 || ents[0].Text != "3" {
		t.Errorf("Recognize() = %+v", ents)
	}
}

func TestEntityRecognizer_InvalidPattern(t *testing.T) {
	r := NewEntityRecognizer(nil)
	if err := r.AddPattern("Bad", "("); err == nil {
		t.Error("expected error for invalid pattern")
	}

	loaded := &EntityRecognizer{Patterns: []Pattern{{Label: "Bad", Pattern: "["}}}
	if err := loaded.Check(); err == nil {
		t.Error("Check() should report an invalid stored pattern")
	}
}

func TestEntity_JSON(t *testing.T) {
	data, err := json.Marshal([]Entity{{Label: "Item", Text: "milk", Start: 4, End: 8}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[["Item","milk"]]` {
		t.Errorf("Marshal() = %s", data)
	}

	var ents []Entity
	if err := json.Unmarshal(data, &ents); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ents[0].Label != "Item" || ents[0].Text != "milk" {
		t.Errorf("Unmarshal() = %+v", ents)
	}

	var e Entity
	if err := json.Unmarshal([]byte(`["only"]`), &e); err == nil {
		t.Error("expected error for single-element pair")
	}

	d := Entity{Label: "Item", Text: "milk", Start: 4, End: 8}.Detail()
	if d.Start != 4 || d.End != 8 {
		t.Errorf("Detail() = %+v", d)
	}
}

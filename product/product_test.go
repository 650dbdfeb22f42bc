package product_test

import (
	"testing"

	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/product"
)

func TestModifies(t *testing.T) {
	p := product.New(id.NewOwnerID(), "awesomeos-extras", "AwesomeOS Extras")
	p.AddContent(product.Content{
		ID:                 "c1",
		Label:              "extras-rpms",
		ModifiedProductIDs: []string{"awesomeos", "awesomeos-server"},
	})
	p.AddContent(product.Content{
		ID:    "c2",
		Label: "extras-docs",
	})

	if !p.Modifies("awesomeos") {
		t.Error("expected content-declared product to be modified")
	}
	if !p.Modifies("awesomeos-server") {
		t.Error("expected second declared product to be modified")
	}
	if p.Modifies("unrelated") {
		t.Error("undeclared product must not be modified")
	}

	empty := product.New(id.NewOwnerID(), "bare", "Bare")
	if empty.Modifies("anything") {
		t.Error("product with no content modifies nothing")
	}
}

func TestAddContentReplacesSameID(t *testing.T) {
	p := product.New(id.NewOwnerID(), "awesomeos", "AwesomeOS")
	p.AddContent(product.Content{ID: "c1", Label: "old"})
	p.AddContent(product.Content{ID: "c1", Label: "new", ModifiedProductIDs: []string{"x"}})

	if len(p.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(p.Content))
	}
	if p.Content[0].Label != "new" {
		t.Errorf("expected replacement, got %q", p.Content[0].Label)
	}
	if !p.Modifies("x") {
		t.Error("replacement content should drive modifies")
	}
}

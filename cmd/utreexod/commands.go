package main

import (
	"fmt"
	"os"

	"github.com/go-utreexo/utreexo/forest"
	"github.com/go-utreexo/utreexo/hashforest"
)

type forestDriver struct {
	f *forest.Forest
}

func (d *forestDriver) dispatch(fields []string, out *os.File) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "add":
		if len(fields) != 2 {
			return fmt.Errorf("usage: add <utxo>")
		}
		return d.f.Add([]byte(fields[1]))
	case "remove":
		if len(fields) != 2 {
			return fmt.Errorf("usage: remove <utxo>")
		}
		return d.f.Remove([]byte(fields[1]))
	case "batchdelete":
		if len(fields) < 2 {
			return fmt.Errorf("usage: batchdelete <utxo>...")
		}
		set := forest.NewUTXOSet()
		for _, u := range fields[1:] {
			set.Add(u)
		}
		return d.f.BatchDelete(set)
	case "count":
		fmt.Fprintln(out, d.f.Count())
		return nil
	case "dump":
		for h, r := range d.f.Dump() {
			if r == nil {
				continue
			}
			fmt.Fprintf(out, "%d %s\n", h, r.String())
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

type hashforestDriver struct {
	f *hashforest.HashForest
}

func (d *hashforestDriver) dispatch(fields []string, out *os.File) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "add":
		if len(fields) != 2 {
			return fmt.Errorf("usage: add <utxo>")
		}
		return d.f.Add([]byte(fields[1]))
	case "remove":
		if len(fields) != 2 {
			return fmt.Errorf("usage: remove <utxo>")
		}
		return d.f.Remove([]byte(fields[1]))
	case "batchdelete":
		return fmt.Errorf("batchdelete is not supported on the hashforest backend")
	case "count":
		fmt.Fprintln(out, d.f.Count())
		return nil
	case "dump":
		for h, r := range d.f.Dump() {
			if r == nil {
				continue
			}
			fmt.Fprintf(out, "%d %s\n", h, r.String())
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

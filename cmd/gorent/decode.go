package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gorent/internal/bencode"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <bencoded-string>",
		Short: "Decode a single bencoded value and print its Go representation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := bencode.ParseAll([]byte(args[0]))
			if err != nil {
				return fmt.Errorf("gorent decode: %w", err)
			}
			fmt.Println(describe(v))
			return nil
		},
	}
}

func describe(v bencode.Value) string {
	switch v.Kind {
	case bencode.KindBstr:
		return fmt.Sprintf("%q", string(v.Bstr))
	case bencode.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case bencode.KindList:
		s := "["
		for i, e := range v.List {
			if i > 0 {
				s += ", "
			}
			s += describe(e)
		}
		return s + "]"
	case bencode.KindDict:
		s := "{"
		for i, kv := range v.Dict {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%q: %s", string(kv.Key.Bstr), describe(kv.Val))
		}
		return s + "}"
	default:
		return "<invalid>"
	}
}

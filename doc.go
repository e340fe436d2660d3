// Package p4k reads P4K game-data archives: ZIP64 containers with AES
// encrypted entries and zstd compression (method 100).
//
// An [Archive] decodes the central directory once and serves decoded entry
// content on demand. Its [Tree] presents the flat, backslash-separated entry
// names as a case-insensitive directory hierarchy in which sharded textures
// are merged into one file and nested .socpak archives are mounted
// transparently.
//
// # Quick Start
//
// Open an archive and read a file:
//
//	a, err := p4k.Open(ctx, "Data.p4k")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	data, err := a.Tree().ReadAll(`Data\Libs\Foundry\Records\ship.xml`)
//
// Extract every XML file in parallel:
//
//	glob, _ := p4k.Glob("*.xml")
//	report, err := p4k.Extract(ctx, a, "./out",
//	    p4k.ExtractWithFilter(glob),
//	    p4k.ExtractParallel(),
//	)
//
// Compare two builds:
//
//	root, err := p4k.Compare(ctx, oldArchive, newArchive)
//	fmt.Println(root.Summary())
//
// # Caching
//
// Decoded entries can be cached with [WithCache]; see the cache, cache/disk
// and cache/memory packages. Concurrent reads of the same entry are
// deduplicated.
//
// # Remote archives
//
// The http subpackage provides a [ByteSource] backed by HTTP range requests.
package p4k

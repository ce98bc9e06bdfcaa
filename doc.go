// Package vpathfs provides a unified virtual path model over local storage
// and SMB/CIFS network shares.
//
// # Overview
//
// Every pathname is normalized to backslash form and classified as local or
// remote. Remote paths live under the network root `\\`, whose levels are
// workgroups, servers and shares:
//
//	\\                      network root (lists workgroups)
//	\\CORP                  workgroup (lists servers)
//	\\CORP\FILESRV          server inside a workgroup
//	\\FILESRV\DATA\reports  share path addressed by server only
//
// A path may start with an alias such as "Docs:", which expands to its
// registered destination before the path is handed to a provider. Aliases
// can point at local directories or at network locations.
//
// # Basic Usage
//
//	fsys, err := vpathfs.New(&vpathfs.Config{
//	    WorkingDir: "/home/jdoe",
//	    Workgroups: map[string][]string{"CORP": {"FILESRV"}},
//	    Aliases: []vpathfs.AliasConfig{
//	        {Name: "Team", Path: `\\FILESRV\DATA\team`, Type: "smb"},
//	    },
//	}, osfs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fsys.Close()
//
//	f := fsys.NewPath("Team:/plans.txt")
//	if f.Exists() {
//	    fmt.Println(f.Length(), f.LastModified())
//	}
//
// # Attributes
//
// A File fetches its attributes on first use and memoizes them. Concurrent
// readers of the same File share a single provider round trip. Files
// returned by directory listings arrive pre-seeded, so iterating a listing
// costs no further round trips.
//
// # Directory Enumeration
//
// OpenDirectory starts a background enumeration session and reports
// progress to a callback every Cache.NotifyEvery entries:
//
//	s := fsys.OpenDirectory(dir, func(s *vpathfs.Session) {
//	    entries, state := s.Snapshot()
//	    fmt.Println(state, len(entries))
//	})
//	files, err := s.AwaitComplete(ctx)
//
// A finished session is reused by later opens of the same directory until
// Cache.SessionTTL elapses or a mutation inside the directory expires it.
//
// # Configuration
//
// LoadConfig reads YAML, TOML or JSON files and VPATHFS_* environment
// variables:
//
//	cfg, err := vpathfs.LoadConfig("vpathfs.yaml")
//
// ParseURI and FileSystem.NewPathFromURI accept file:, cifs: and smb: URIs;
// user info in an smb: URI registers a credential for its server.
//
// # Errors
//
// Operations returning bool record the failure on the File and on the
// FileSystem. LastErrorCode reports provider codes in the Win32 error space
// that CIFS servers use (2 file not found, 53 bad network path, ...).
// Returned errors match the io/fs sentinels with errors.Is.
//
// # Testing
//
// MockSessionFactory and MockSMBBackend serve SMB sessions from memory:
//
//	backend := vpathfs.NewMockSMBBackend("DATA")
//	backend.AddFile("DATA/readme.txt", []byte("hi"), 0644)
//	factory := vpathfs.NewMockSessionFactory()
//	factory.AddServer("FILESRV", backend)
//	fsys, _ := vpathfs.New(cfg, memfs, vpathfs.WithSessionFactory(factory))
package vpathfs

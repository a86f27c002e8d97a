package soy

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/autoescape"
	"github.com/robfig/soy/backend"
	"github.com/robfig/soy/data"
	"github.com/robfig/soy/parse"
	"github.com/robfig/soy/parsepasses"
	"github.com/robfig/soy/soyhtml"
	"github.com/robfig/soy/template"
)

// Logger is used to print soy compile error messages when using the
// "WatchFiles" feature.
var Logger = log.New(os.Stderr, "[soy] ", 0)

type soyFile struct{ name, content string }

// Bundle is a collection of soy content (templates and globals). It acts as
// input for the soy parser.
type Bundle struct {
	files   []soyFile
	globals data.Map
	err     error
	watcher *fsnotify.Watcher
}

// NewBundle returns an empty Bundle.
func NewBundle() *Bundle {
	return &Bundle{globals: make(data.Map)}
}

// WatchFiles tells soy to watch any template files added to this bundle,
// re-compile as necessary, and propagate the updates to your tofu. It should
// be called once, before adding any files.
func (b *Bundle) WatchFiles(watch bool) *Bundle {
	if watch && b.err == nil && b.watcher == nil {
		b.watcher, b.err = fsnotify.NewWatcher()
	}
	return b
}

// AddTemplateDir adds all *.soy files found within the given directory
// (including sub-directories) to the bundle.
func (b *Bundle) AddTemplateDir(root string) *Bundle {
	var err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".soy") {
			return nil
		}
		b.AddTemplateFile(path)
		return nil
	})
	if err != nil {
		b.err = err
	}
	return b
}

// AddTemplateFile adds the given soy template file text to this bundle.
func (b *Bundle) AddTemplateFile(filename string) *Bundle {
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		b.err = err
	}
	if b.err == nil && b.watcher != nil {
		b.err = b.watcher.Add(filename)
	}
	return b.AddTemplateString(filename, string(content))
}

// AddTemplateString adds the given soy template text to this bundle, as if
// it had been read from a file with the given name.
func (b *Bundle) AddTemplateString(filename, soyfile string) *Bundle {
	b.files = append(b.files, soyFile{filename, soyfile})
	return b
}

// AddGlobalsFile parses a file of globals and makes them available to all
// templates in this bundle.
func (b *Bundle) AddGlobalsFile(filename string) *Bundle {
	var f, err = os.Open(filename)
	if err != nil {
		b.err = err
		return b
	}
	defer f.Close()
	globals, err := ParseGlobals(f)
	if err != nil {
		b.err = err
		return b
	}
	return b.AddGlobalsMap(globals)
}

// AddGlobalsMap makes the given globals available to all templates in this
// bundle.
func (b *Bundle) AddGlobalsMap(globals data.Map) *Bundle {
	for k, v := range globals {
		if existing, ok := b.globals[k]; ok {
			b.err = fmt.Errorf("global %q already defined as %q", k, existing)
			return b
		}
		b.globals[k] = v
	}
	return b
}

// Compile parses and validates all of this bundle's templates, runs
// autoescaping, and returns the resulting registry.
//
// Compile shares one ast.IDGen across every file in the bundle, so node ids
// stay unique even after autoescape.Strict clones a template reached from
// more than one starting context.
func (b *Bundle) Compile() (*template.Registry, error) {
	if b.err != nil {
		return nil, b.err
	}

	var registry = &template.Registry{}
	var gen = ast.NewIDGen()
	for _, soyfile := range b.files {
		var tree, err = parse.SoyFileWithIDGen(soyfile.name, soyfile.content, b.globals, gen)
		if err != nil {
			return nil, err
		}
		if err = registry.Add(tree); err != nil {
			return nil, err
		}
	}

	if err := parsepasses.CheckDataRefs(registry); err != nil {
		return nil, err
	}
	parsepasses.ProcessMessages(*registry)
	if err := autoescape.Simple(registry); err != nil {
		return nil, err
	}
	if err := autoescape.Strict(registry); err != nil {
		return nil, err
	}

	if b.watcher != nil {
		go b.recompiler(registry)
	}
	return registry, nil
}

// CompileToTofu compiles this bundle and wraps the result in a soyhtml.Tofu,
// ready to render.
func (b *Bundle) CompileToTofu() (*soyhtml.Tofu, error) {
	var registry, err = b.Compile()
	if err != nil {
		return nil, err
	}
	return soyhtml.NewTofu(registry), nil
}

// CompileToArtifact compiles this bundle and wraps the result in a
// backend.Artifact, the stable view a code emitter other than soyhtml's own
// runtime renderer (e.g. a JS generator) depends on instead of a bare
// *template.Registry.
func (b *Bundle) CompileToArtifact() (backend.Artifact, error) {
	var registry, err = b.Compile()
	if err != nil {
		return nil, err
	}
	return backend.New(registry, nil), nil
}

// recompiler watches for filesystem events on a bundle's template files and
// recompiles the whole bundle in the background, updating registry in place
// so renderers already holding a pointer to it see the new templates.
func (b *Bundle) recompiler(registry *template.Registry) {
	for {
		select {
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			// If it's a rename or remove, fsnotify has dropped the watch.
			// Add it back, after a delay.
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(10 * time.Millisecond)
				if err := b.watcher.Add(ev.Name); err != nil {
					Logger.Println(err)
				}
			}

			// Recompile all the soy.
			var rebuilt = NewBundle().AddGlobalsMap(b.globals)
			for _, soyfile := range b.files {
				if content, err := ioutil.ReadFile(soyfile.name); err == nil {
					soyfile.content = string(content)
				}
				rebuilt.AddTemplateString(soyfile.name, soyfile.content)
			}
			var newRegistry, err = rebuilt.Compile()
			if err != nil {
				Logger.Println(err)
				continue
			}

			// Update the existing template registry in place.
			// (this is not goroutine-safe, but that seems ok for a
			// development aid, as long as it works in practice)
			*registry = *newRegistry
			Logger.Printf("update successful (%v)", ev)

		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			Logger.Println(err)
		}
	}
}

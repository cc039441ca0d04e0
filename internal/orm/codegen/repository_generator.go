package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// DefaultModulePath is the import path the generated code refers to
const DefaultModulePath = "github.com/conduit-lang/persist"

// GeneratedFile is one rendered Go source file
type GeneratedFile struct {
	Name   string
	Source []byte
}

// RepositoryGenerator renders typed repositories from entity declarations.
// The generated package must live inside the module named by ModulePath.
type RepositoryGenerator struct {
	Package    string
	ModulePath string
}

// NewRepositoryGenerator creates a generator writing package pkg
func NewRepositoryGenerator(pkg string) *RepositoryGenerator {
	return &RepositoryGenerator{Package: pkg, ModulePath: DefaultModulePath}
}

func (g *RepositoryGenerator) pkg(name string) string {
	module := g.ModulePath
	if module == "" {
		module = DefaultModulePath
	}
	return module + "/internal/orm/" + name
}

// Generate renders one file per declared entity
func (g *RepositoryGenerator) Generate(decl *schema.Declarations) ([]GeneratedFile, error) {
	if g.Package == "" {
		return nil, fmt.Errorf("package name is required")
	}

	files := make([]GeneratedFile, 0, len(decl.Entities))
	seen := make(map[string]string, len(decl.Entities))
	for _, ed := range decl.Entities {
		name := TypeName(ed)
		if other, ok := seen[name]; ok {
			return nil, fmt.Errorf("tables %s and %s both generate type %s", other, ed.Table, name)
		}
		seen[name] = ed.Table

		f, err := g.generateEntity(ed, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ed.Table, err)
		}

		var buf strings.Builder
		if err := f.Render(&buf); err != nil {
			return nil, fmt.Errorf("%s: failed to render: %w", ed.Table, err)
		}
		files = append(files, GeneratedFile{
			Name:   inflect.Underscore(name) + "_repository.go",
			Source: []byte(buf.String()),
		})
	}
	return files, nil
}

// WriteFiles writes generated files into dir, creating it when missing
func WriteFiles(dir string, files []GeneratedFile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Source, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	return nil
}

// TypeName returns the Go type generated for a declared entity
func TypeName(ed schema.EntityDeclaration) string {
	if ed.Name != "" {
		return ed.Name
	}
	return inflect.Camelize(inflect.Singularize(ed.Table))
}

// MethodSuffix returns the exported form of a property used in finder names
func MethodSuffix(property string) string {
	return inflect.Camelize(property)
}

func (g *RepositoryGenerator) generateEntity(ed schema.EntityDeclaration, name string) (*jen.File, error) {
	schemaPkg := g.pkg("schema")
	entityPkg := g.pkg("entity")
	repoPkg := g.pkg("repository")
	crudPkg := g.pkg("crud")

	f := jen.NewFile(g.Package)
	f.HeaderComment("Code generated by persist. DO NOT EDIT.")
	f.ImportName(schemaPkg, "schema")
	f.ImportName(entityPkg, "entity")
	f.ImportName(repoPkg, "repository")
	f.ImportName(crudPkg, "crud")

	chain, err := g.metadataChain(ed, name, schemaPkg)
	if err != nil {
		return nil, err
	}

	f.Commentf("%sMetadata returns the metadata of the %s table", name, ed.Table)
	f.Func().Id(name + "Metadata").Params().Op("*").Qual(schemaPkg, "EntityMetadata").Block(
		jen.Return(chain),
	)

	f.Commentf("%s is an entity of the %s table", name, ed.Table)
	f.Type().Id(name).Struct(
		jen.Op("*").Qual(entityPkg, "Record"),
	)

	f.Commentf("New%s creates a %s from its property values", name, name)
	f.Func().Id("New"+name).Params(
		jen.Id("md").Op("*").Qual(schemaPkg, "EntityMetadata"),
		jen.Id("dto").Map(jen.String()).Any(),
	).Qual(schemaPkg, "Entity").Block(
		jen.Return(jen.Op("&").Id(name).Values(jen.Dict{
			jen.Id("Record"): jen.Qual(entityPkg, "NewRecord").Call(jen.Id("md"), jen.Id("dto")),
		})),
	)

	repoType := name + "Repository"
	f.Commentf("%s is the typed repository of %s", repoType, name)
	f.Type().Id(repoType).Struct(
		jen.Op("*").Qual(repoPkg, "Repository").Types(jen.Op("*").Id(name)),
	)

	f.Commentf("New%s registers %s with p", repoType, name)
	f.Func().Id("New"+repoType).Params(jen.Id("p").Qual(crudPkg, "Persister")).Params(
		jen.Op("*").Id(repoType), jen.Error(),
	).Block(
		jen.List(jen.Id("repo"), jen.Err()).Op(":=").Qual(repoPkg, "New").Types(jen.Op("*").Id(name)).Call(
			jen.Id("p"), jen.Id(name+"Metadata").Call(),
		),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Op("&").Id(repoType).Values(jen.Dict{jen.Id("Repository"): jen.Id("repo")}), jen.Nil()),
	)

	for _, fd := range ed.Fields {
		vt, err := schema.ParseValueType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fd.Property, err)
		}
		g.finders(f, name, repoType, fd.Property, goType(vt))
	}
	for _, m2o := range ed.ManyToOne {
		g.finders(f, name, repoType, m2o.Property, jen.Any())
	}
	return f, nil
}

func (g *RepositoryGenerator) metadataChain(ed schema.EntityDeclaration, name, schemaPkg string) (*jen.Statement, error) {
	idType, err := schema.ParseValueType(ed.ID.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ed.ID.Property, err)
	}

	chain := jen.Qual(schemaPkg, "NewEntity").Call(jen.Lit(ed.Table)).Op(".").Line().
		Id("ID").Call(jen.Lit(ed.ID.Property), jen.Lit(column(ed.ID)), valueType(schemaPkg, idType))

	for _, fd := range ed.Fields {
		vt, err := schema.ParseValueType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fd.Property, err)
		}
		chain = chain.Op(".").Line()
		switch {
		case fd.Definition != "":
			chain = chain.Id("Field").Call(jen.Qual(schemaPkg, "EntityField").Values(jen.Dict{
				jen.Id("PropertyName"):     jen.Lit(fd.Property),
				jen.Id("ColumnName"):       jen.Lit(column(fd)),
				jen.Id("ColumnDefinition"): jen.Lit(fd.Definition),
				jen.Id("Nullable"):         jen.Lit(fd.Nullable),
				jen.Id("FieldType"):        jen.Qual(schemaPkg, "FieldScalar"),
				jen.Id("ValueType"):        valueType(schemaPkg, vt),
			}))
		case fd.Nullable:
			chain = chain.Id("NullableColumn").Call(jen.Lit(fd.Property), jen.Lit(column(fd)), valueType(schemaPkg, vt))
		default:
			chain = chain.Id("Column").Call(jen.Lit(fd.Property), jen.Lit(column(fd)), valueType(schemaPkg, vt))
		}
	}
	for _, m2o := range ed.ManyToOne {
		chain = chain.Op(".").Line().Id("ManyToOne").Call(jen.Lit(m2o.Property), jen.Lit(m2o.JoinColumn), jen.Lit(m2o.Nullable))
	}
	for _, o2m := range ed.OneToMany {
		if o2m.MappedTable != "" {
			chain = chain.Op(".").Line().Id("OneToManyFrom").Call(jen.Lit(o2m.Property), jen.Lit(o2m.MappedBy), jen.Lit(o2m.MappedTable))
			continue
		}
		chain = chain.Op(".").Line().Id("OneToMany").Call(jen.Lit(o2m.Property), jen.Lit(o2m.MappedBy))
	}

	return chain.Op(".").Line().Id("Factory").Call(jen.Id("New" + name)).Op(".").Line().
		Id("MustBuild").Call(), nil
}

// finders emits the typed per-field methods of one property
func (g *RepositoryGenerator) finders(f *jen.File, name, repoType, property string, paramType *jen.Statement) {
	suffix := MethodSuffix(property)
	recv := jen.Id("r").Op("*").Id(repoType)
	params := func() []jen.Code {
		return []jen.Code{jen.Id("ctx").Qual("context", "Context"), jen.Id("value").Add(paramType.Clone())}
	}
	args := func() []jen.Code {
		return []jen.Code{jen.Id("ctx"), jen.Lit(property), jen.Id("value")}
	}

	f.Commentf("FindBy%s returns the first %s whose %s equals value", suffix, name, property)
	f.Func().Params(recv.Clone()).Id("FindBy"+suffix).Params(params()...).Params(
		jen.Op("*").Id(name), jen.Bool(), jen.Error(),
	).Block(jen.Return(jen.Id("r").Dot("Repository").Dot("FindByField").Call(args()...)))

	f.Commentf("FindAllBy%s returns every %s whose %s equals value", suffix, name, property)
	f.Func().Params(recv.Clone()).Id("FindAllBy"+suffix).Params(params()...).Params(
		jen.Index().Op("*").Id(name), jen.Error(),
	).Block(jen.Return(jen.Id("r").Dot("Repository").Dot("FindAllByField").Call(args()...)))

	f.Commentf("CountBy%s counts the %s rows whose %s equals value", suffix, name, property)
	f.Func().Params(recv.Clone()).Id("CountBy"+suffix).Params(params()...).Params(
		jen.Int64(), jen.Error(),
	).Block(jen.Return(jen.Id("r").Dot("Repository").Dot("CountByField").Call(args()...)))

	f.Commentf("ExistsBy%s reports whether a %s with the given %s exists", suffix, name, property)
	f.Func().Params(recv.Clone()).Id("ExistsBy"+suffix).Params(params()...).Params(
		jen.Bool(), jen.Error(),
	).Block(jen.Return(jen.Id("r").Dot("Repository").Dot("ExistsByField").Call(args()...)))

	f.Commentf("DeleteAllBy%s deletes the %s rows whose %s equals value", suffix, name, property)
	f.Func().Params(recv.Clone()).Id("DeleteAllBy"+suffix).Params(params()...).Error().Block(
		jen.Return(jen.Id("r").Dot("Repository").Dot("DeleteAllByField").Call(args()...)),
	)
}

func column(fd schema.FieldDeclaration) string {
	if fd.Column != "" {
		return fd.Column
	}
	return fd.Property
}

func valueType(schemaPkg string, vt schema.ValueType) *jen.Statement {
	switch vt {
	case schema.TypeString:
		return jen.Qual(schemaPkg, "TypeString")
	case schema.TypeInt:
		return jen.Qual(schemaPkg, "TypeInt")
	case schema.TypeFloat:
		return jen.Qual(schemaPkg, "TypeFloat")
	case schema.TypeBool:
		return jen.Qual(schemaPkg, "TypeBool")
	case schema.TypeTime:
		return jen.Qual(schemaPkg, "TypeTime")
	case schema.TypeUUID:
		return jen.Qual(schemaPkg, "TypeUUID")
	case schema.TypeJSON:
		return jen.Qual(schemaPkg, "TypeJSON")
	default:
		return jen.Qual(schemaPkg, "TypeUnknown")
	}
}

// goType is the parameter type of the finders of a property
func goType(vt schema.ValueType) *jen.Statement {
	switch vt {
	case schema.TypeString, schema.TypeUUID:
		return jen.String()
	case schema.TypeInt:
		return jen.Int64()
	case schema.TypeFloat:
		return jen.Float64()
	case schema.TypeBool:
		return jen.Bool()
	case schema.TypeTime:
		return jen.Qual("time", "Time")
	default:
		return jen.Any()
	}
}

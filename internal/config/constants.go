package config

const SourceFileExt = ".loom"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".loom", ".lm"}

// Built-in type names
const (
	IntTypeName     = "int"
	FloatTypeName   = "float"
	BoolTypeName    = "bool"
	StringTypeName  = "string"
	PointerTypeName = "pointer"
	NoneTypeName    = "none"
	AnyTypeName     = "any"
)

// Built-in function names
const (
	PrintFuncName = "print"
	LenFuncName   = "len"
	StrFuncName   = "str"
)

// PreludeModuleName is the origin recorded on built-in symbols.
const PreludeModuleName = "prelude"

// Binding exposure modes
const (
	BindModeMap  = "map"
	BindModeType = "type"
)

// Native compiler backends
const (
	BackendTable = "table"
	BackendTCC   = "tcc"
)

// PtrToPrefix prefixes the struct accessor exposed for every bound struct.
const PtrToPrefix = "ptrTo"

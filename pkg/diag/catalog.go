package diag

// messages maps every diagnostic code to its message template. Templates
// use positional {0}, {1}... placeholders.
var messages = map[string]string{
	// --- Syntax
	"Z1001": "Unexpected token: '{0}'",
	"Z1002": "A line cannot start with this token: '{0}'",
	"Z1003": "An expression expected",
	"Z1004": "An identifier expected",
	"Z1005": "Cannot parse a numeric literal",
	"Z1006": "A string literal expected",
	"Z1007": "Comma expected",
	"Z1008": "DE register expected",
	"Z1009": "B register expected",
	"Z1010": "A register expected",
	"Z1011": "D register expected",
	"Z1012": "E register expected",
	"Z1013": "'(' expected",
	"Z1014": "')' expected",
	"Z1015": "'}}' expected",
	"Z1016": "Operand expected",
	"Z1017": "Invalid token at the end of the line: '{0}'",
	"Z1018": "Illegal character or unterminated literal: '{0}'",
	"Z1019": "'=' expected",
	"Z1020": "'.to' expected",
	"Z1021": "A data pragma expected after '->'",
	"Z1022": "A 16-bit register expected",

	// --- Struct
	"Z0801": "The size of the struct fields ({0}) exceeds the struct size ({1})",
	"Z0802": "Unknown struct field: '{0}'",
	"Z0803": "Field assignment is allowed only within a struct invocation",
	"Z0804": "A .struct definition requires a label",
	"Z0805": "A .struct label cannot be a temporary or local one: '{0}'",
	"Z0806": "The .struct name '{0}' is already in use",
	"Z0807": "The .ends statement cannot have a label",
	"Z0808": "Only data pragmas, labels and comments are allowed in a .struct definition",
	"Z0809": "A struct invocation cannot have arguments",
	"Z0810": "Duplicate struct field: '{0}'",

	// --- Semantic and preprocessor
	"Z2000": "The emitted code exceeds the segment size limit",
	"Z2001": "Error in macro '{0}': {1}",
	"Z2002": "The .zxbasic pragma must be the first processed line",
	"Z2003": "Missing #endif",
	"Z2004": "Include file not found: '{0}'",
	"Z2005": "File '{0}' is already included into this file",
	"Z2006": "Including '{0}' would create a circular include",
	"Z2007": "Error reading included file '{0}': {1}",
	"Z2008": "Unknown model name in #ifmod/#ifnmod: '{0}'",
	"Z2009": "#else without #if",
	"Z2010": "#endif without #if",
	"Z2011": "The .model pragma can be used only once",
	"Z2012": "Unknown model name: '{0}'",
	"Z2016": "The .equ pragma requires a label",
	"Z2017": "Symbol '{0}' is already defined",
	"Z2018": "The .bank pragma cannot have a label",
	"Z2019": "The .bank value is out of range: {0}",
	"Z2020": "The .bank offset must be between 0 and 0x3FFF",
	"Z2021": "The .bank pragma requires a ZX Spectrum 128, +3 or Next model",
	"Z2022": "Bank {0} is already used",
	"Z2023": "Unknown instruction: '{0}'",
	"Z2024": "The .xorg pragma can be used only once per segment",
	"Z2025": "The {0} pragma can be used only in the global scope",
	"Z2026": "The .var pragma requires a label",
	"Z2027": "Symbol '{0}' is already defined and it is not a variable",
	"Z2028": "The .skip address ({0}) is lower than the current address ({1})",
	"Z2029": "The .defb/.defw pragma does not accept string values",
	"Z2030": "The .defm/.defn/.defc pragma requires a string value",
	"Z2031": "The .defh pragma requires a string value",
	"Z2032": "The .defh pragma requires an even number of hexadecimal digits",
	"Z2033": "Invalid .align value: {0}",
	"Z2034": "The file name must be a string",
	"Z2035": "The offset and length values must be integers",
	"Z2036": "Invalid offset value",
	"Z2037": "Invalid length value",
	"Z2038": "Cannot read the binary file: {0}",
	"Z2040": "The .defgx pragma requires a string value",
	"Z2041": "The .defg/.defgx pattern is empty",
	"Z2042": "A numeric value expected, string found",
	"Z2043": "Invalid operand(s) for this instruction",
	"Z2044": "Relative jump cannot use this condition",
	"Z2045": "Relative jump distance is out of range: {0}",
	"Z2046": "Invalid RST target: {0}",
	"Z2047": "Invalid interrupt mode: {0}",
	"Z2048": "The only valid value for 'out (c),n' is 0",
	"Z2049": "Bit index must be between 0 and 7: {0}",
	"Z2050": "The first operand must be 'a' in the two-operand form",
	"Z2051": "The first 8-bit operand must be 'a'",
	"Z2052": "Missing end statement: {0}",
	"Z2053": "The loop is too long; it cannot exceed 65535 iterations",
	"Z2054": "Too many errors in the loop body, processing stopped",
	"Z2055": "{0} statement without a matching {1}",
	"Z2056": "The loop counter can be used only inside a loop",
	"Z2057": "The .for step cannot be zero",
	"Z2058": "The .for variable '{0}' already exists",
	"Z2059": ".break can be used only inside a loop",
	"Z2060": ".continue can be used only inside a loop",
	"Z2061": "The {0} statement cannot have a label",
	"Z2062": "The {0} statement cannot follow .else",
	"Z2063": "A temporary label cannot be declared local: '{0}'",
	"Z2064": "Local symbol '{0}' is already declared",
	"Z2065": ".local can be used only inside a .proc",
	"Z2066": "A .module requires a name",
	"Z2067": "A module name cannot be temporary: '{0}'",
	"Z2068": "Module '{0}' already exists",
	"Z2069": "A macro parameter can be used only inside a macro definition: '{0}'",
	"Z2070": "'{0}' is a macro or struct name; invoke it as '{0}()'",
	"Z2075": "Duplicate macro argument: '{0}'",
	"Z2076": "A .macro definition requires a label",
	"Z2077": "A macro name cannot be temporary: '{0}'",
	"Z2078": "The macro name '{0}' is already in use",
	"Z2079": "Macro definitions cannot be nested",
	"Z2080": "Unknown macro argument: '{0}'",
	"Z2081": "The .comparebin file name must be a string",
	"Z2082": "Invalid .comparebin offset",
	"Z2083": "Invalid .comparebin length",
	"Z2084": "Cannot read .comparebin file '{0}': {1}",
	"Z2085": ".comparebin mismatch: {0}",
	"Z2087": "Unknown macro or struct: '{0}'",
	"Z2088": "Macro '{0}' accepts {1} argument(s), but {2} were given",
	"Z2089": "Macro-time functions can be used only in a macro invocation",

	// --- Evaluation
	"Z3000": "Identifier '{0}' is not defined",
	"Z3001": "Expression evaluation error: {0}",

	"Z4000": "{0}",

	// --- Instruction set
	"Z5000": "POP cannot take an immediate operand",
	"Z5001": "This instruction is available only on the ZX Spectrum Next",
	"Z5002": "Invalid operand for PUSH/POP",

	// --- Warnings
	"W0001": "Symbol '{0}' is declared but never used",
	"W0002": "'{0}' is a ZX Spectrum Next only instruction",
	"W0003": "Value {0} does not fit into {1} bits and is truncated",
	"W0004": "'.model' follows code; the model applies to the whole program",
}

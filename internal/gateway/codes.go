package gateway

import "fmt"

// errorDescriptions maps gateway error codes to the user-facing Spanish
// descriptions shown at the terminal.
var errorDescriptions = map[string]string{
	// Autenticación
	"YP-0001": "Credenciales inválidas. Verifica tu API Key y Secret Key.",
	"YP-0002": "Token de autorización inválido o expirado.",
	"YP-0003": "No tienes permisos para esta operación.",

	// Validación
	"YP-0009": "Faltan campos obligatorios en la solicitud. Verifica la configuración del dispositivo.",
	"YP-0010": "Formato de JSON inválido en la solicitud.",
	"YP-0011": "Valor de campo inválido. Verifica los datos enviados.",
	"YP-0013": "El ID del dispositivo ya está registrado con una sesión activa.",

	// Transacción
	"YP-0021": "No se encontró la transacción solicitada.",
	"YP-0022": "El estado de la transacción no permite esta operación.",
	"YP-0023": "La transacción fue cancelada por el usuario.",
	"YP-0024": "El monto de la transacción es inválido o no está permitido.",
	"YP-0025": "La moneda de la transacción no está soportada.",

	// Sesión
	"YP-0031": "No se encontró una sesión activa para este dispositivo.",
	"YP-0032": "La sesión ha expirado. Intenta iniciar una nueva sesión.",

	// QR
	"YP-0041": "Error al generar el código QR.",
	"YP-0042": "El código QR ha expirado.",

	// Sistema
	"YP-0099":   "Error interno del sistema de pagos. Intenta nuevamente más tarde.",
	"YP-0098":   "El servicio de pagos está en mantenimiento. Intenta más tarde.",
	"YAPPY-998": "Servicio temporalmente no disponible. Por favor intente nuevamente en unos momentos.",
}

// Describe resolves a gateway error code to its user-facing description.
// Unknown codes get a generic fallback that still surfaces the code.
func Describe(code string) string {
	if d, ok := errorDescriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("Error desconocido (%s). Contacta a soporte técnico.", code)
}

// Recoverable reports whether a gateway error code denotes a transient
// condition that a retry may resolve.
func Recoverable(code string) bool {
	switch code {
	case "YP-0098", "YP-0099", "YP-0032":
		return true
	}
	return false
}

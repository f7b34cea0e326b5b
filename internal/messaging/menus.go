package messaging

// Option identifiers carried by interactive replies and template quick replies.
const (
	OptionFullAnalysisYes   = "full_analysis_yes"
	OptionFullAnalysisNo    = "full_analysis_no"
	OptionDiagnostic        = "diagnostico"
	OptionConfirmDiagnostic = "confirm_diagnostico"
	OptionAppointment       = "cita"
	OptionProducts          = "productos"
	OptionLocation          = "ubicacion"
	OptionFinish            = "terminar"
	OptionMenu              = "menu"
	OptionGetFullAnalysis   = "get_full_analysis"
)

const templateLanguage = "es"

// MainMenu is the four-row welcome list.
func MainMenu() List {
	return List{
		Body:       MenuPrompt,
		ButtonText: MenuButtonText,
		Sections: []ListSection{{
			Title: "Opciones Principales",
			Rows: []ListRow{
				{ID: OptionDiagnostic, Title: "✨Diagnóstico Capilar✨"},
				{ID: OptionAppointment, Title: "Cita con Profesional 💇🏻‍♀️"},
				{ID: OptionProducts, Title: "Ver Productos🧴"},
				{ID: OptionLocation, Title: "Ubicación 📍"},
			},
		}},
	}
}

func OfferButtons() []Button {
	return []Button{
		{ID: OptionFullAnalysisYes, Title: "Sí"},
		{ID: OptionFullAnalysisNo, Title: "No"},
	}
}

func HelpButtons() []Button {
	return []Button{
		{ID: OptionFinish, Title: "No, gracias"},
		{ID: OptionMenu, Title: "Menú principal"},
	}
}

func MoreOptionsButtons() []Button {
	return []Button{
		{ID: OptionAppointment, Title: "Agendar Cita 💇🏻‍♀️"},
		{ID: OptionProducts, Title: "Comprar Productos🧴"},
		{ID: OptionDiagnostic, Title: "✨Nuevo Diagnóstico✨"},
	}
}

func ConfirmDiagnosticButtons() []Button {
	return []Button{
		{ID: OptionConfirmDiagnostic, Title: "Sí"},
		{ID: OptionMenu, Title: "No, volver al menú"},
	}
}

// AnalysisReadyTemplate asks a user outside the reply window to come back for the result.
// Its quick-reply button carries OptionGetFullAnalysis.
func AnalysisReadyTemplate() Template {
	return Template{
		Name:         AnalysisReadyTemplateName,
		Language:     templateLanguage,
		BodyParams:   []string{AnalysisReadyTemplateText},
		QuickReplies: []string{OptionGetFullAnalysis},
	}
}

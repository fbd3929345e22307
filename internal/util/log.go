package util

const (
	// package keys
	PackageKey = "package"

	PackageMain        = "main"
	PackageConfig      = "config"
	PackageDrive       = "drive"
	PackageFolio       = "folio"
	PackageForm        = "form"
	PackagePdf         = "pdf"
	PackagePipeline    = "pipeline"
	PackageSession     = "session"
	PackageSubmit      = "submit"
	PackageFingerprint = "fingerprint"

	// component keys
	ComponentKey = "component"

	ComponentMain         = "main"
	ComponentConfig       = "config"
	ComponentDriveClient  = "drive client"
	ComponentFormHandler  = "form handler"
	ComponentNormalizer   = "normalizer"
	ComponentOrchestrator = "orchestrator"
	ComponentPdfAssembler = "pdf assembler"
	ComponentSessionStore = "session store"

	// service keys
	ServiceKey = "service"

	ServiceFolioFotos = "foliofotos"
)

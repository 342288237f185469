package report

// Columns added to facility artifacts by the analysis stages
const (
	ColPhoneClean     = "phone_clean"
	ColFraudScore     = "fraud_score"
	ColFraudFlags     = "fraud_flags"
	ColRiskScore      = "risk_score"
	ColMonthsOperated = "months_operated"
	ColMapsURL        = "google_maps_url"
)

// Artifact file names shared between stages
const (
	FileLowCapacity         = "low_capacity_daycares_ca.csv"
	FileSuspiciousLowCap    = "suspicious_low_capacity_daycares.csv"
	FileLicensedLowCap      = "licensed_low_capacity_daycares.csv"
	FileDuplicateAddresses  = "fraud_flag_duplicate_addresses.csv"
	FileMultiLicensees      = "fraud_flag_multi_facility_licensees.csv"
	FileCovidEra            = "fraud_flag_covid_era_licenses.csv"
	FileShortLived          = "fraud_flag_short_lived_facilities.csv"
	FileHighRisk            = "HIGH_RISK_FACILITIES.csv"
	FilePhoneGroups         = "fraud_analysis_duplicate_phones.csv"
	FilePhoneFacilities     = "DUPLICATE_PHONE_FACILITIES.csv"
	FileGeoClusters         = "fraud_analysis_geographic_clusters.csv"
	FilePriority            = "PRIORITY_INVESTIGATION_LIST.csv"
	FileRiskSummary         = "risk_summary.json"
	FileInvestigationLinks  = "INVESTIGATION_WITH_LINKS.csv"
	FileInvestigationReport = "INVESTIGATION_REPORT.html"
	FileInspectionReports   = "inspection_reports_found.csv"
	FileViolations          = "FACILITIES_WITH_VIOLATIONS.csv"
	FileCACFPImpact         = "cacfp_impact_report_2023-24.xlsx"
	FileCACFPMatches        = "cacfp_matches.csv"
	FileCACFPCounties       = "cacfp_county_probe.csv"
	FileOwnerNetworkMap     = "owner-network-map.html"
	FileAddressNetworkMap   = "address-network-map.html"
	FilePhoneNetworkMap     = "phone-network-map.html"
)

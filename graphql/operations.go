package graphql

// Operation documents sent to the dashboard backend. Every operation is posted
// to the same endpoint; the backend treats reads as mutations too.
const (
	RefreshMutation = `mutation Refresh {
  refresh
}`

	SwitchTenantsMutation = `mutation SwitchTenants($tid: String!) {
  switchTenants(tid: $tid) {
    success
    data {
      accessToken
      refreshToken
    }
  }
}`

	UserProfileAssociationsMutation = `mutation GetUserProfileAssociations {
  getUserProfileAssociations
}`

	CreateTenantMutation = `mutation CreateTenant($tenantName: String!, $tenantType: String!) {
  createTenant(tenantName: $tenantName, tenantType: $tenantType)
}`

	CreateWorkspaceMutation = `mutation CreateWorkspace($workspaceName: String!) {
  createWorkspace(workspaceName: $workspaceName)
}`

	CreateProjectMutation = `mutation CreateProject($wid: String!, $projectName: String!, $projectType: String!) {
  createProject(wid: $wid, projectName: $projectName, projectType: $projectType)
}`

	ProjectDetailsMutation = `mutation ProjectDetails($wid: String!, $pid: String!) {
  projectDetails(wid: $wid, pid: $pid) {
    id
    name
    repoLink
    projectType
    defaultBranch
  }
}`

	UserLoginMutation = `mutation UserLogin($email: String!, $password: String!) {
  userLogin(email: $email, password: $password)
}`

	UserSignupMutation = `mutation UserSignup($email: String!, $password: String!, $name: String!) {
  userSignup(email: $email, password: $password, name: $name)
}`

	GoogleSignupOrLoginMutation = `mutation GoogleSignupOrLogin($idToken: String!) {
  googleSignupOrLogin(idToken: $idToken)
}`

	GitHubSignupOrLoginMutation = `mutation GithubSignupOrLogin($code: String!) {
  githubSignupOrLogin(code: $code)
}`

	UserOnboardingCompleteMutation = `mutation UserOnboardingComplete($tenantName: String!, $tenantType: String!) {
  userOnboardingComplete(tenantName: $tenantName, tenantType: $tenantType)
}`
)

// Field names of the operations above, as they appear under "data".
const (
	FieldRefresh                 = "refresh"
	FieldSwitchTenants           = "switchTenants"
	FieldUserProfileAssociations = "getUserProfileAssociations"
	FieldCreateTenant            = "createTenant"
	FieldCreateWorkspace         = "createWorkspace"
	FieldCreateProject           = "createProject"
	FieldProjectDetails          = "projectDetails"
	FieldUserLogin               = "userLogin"
	FieldUserSignup              = "userSignup"
	FieldGoogleSignupOrLogin     = "googleSignupOrLogin"
	FieldGitHubSignupOrLogin     = "githubSignupOrLogin"
	FieldUserOnboardingComplete  = "userOnboardingComplete"
)
